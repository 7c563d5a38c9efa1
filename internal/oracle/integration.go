package oracle

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/feed"
	"depin-engine-backend/internal/model"
)

// Integration holds the single externally-fed value: the aggregate of
// the configured price sources, scaled to canonical decimals. Updates
// are interval-gated and, once a value is set, tolerance-gated.
type Integration struct {
	eng *engine.Engine
}

// NewIntegration creates the integration on an engine.
func NewIntegration(eng *engine.Engine) *Integration {
	return &Integration{eng: eng}
}

// EnsureIntegrationState seeds the singleton integration row.
func EnsureIntegrationState(db *gorm.DB, intervalSec, tolerance int64, decimals int) error {
	var st model.OracleIntegrationState
	err := db.First(&st, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&model.OracleIntegrationState{
			ID:                1,
			UpdateIntervalSec: intervalSec,
			Tolerance:         tolerance,
			CanonicalDecimals: decimals,
		}).Error
	}
	return err
}

// State returns the integration singleton.
func (i *Integration) State(ctx context.Context) (*model.OracleIntegrationState, error) {
	var st model.OracleIntegrationState
	if err := i.eng.DB().WithContext(ctx).First(&st, 1).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// Update runs one feed cycle. It rejects the cycle outright while the
// update interval has not elapsed, then fetches every source, scales
// each price to canonical decimals and averages them. An unset current
// value (zero) adopts the aggregate unconditionally; afterwards the
// aggregate is adopted only within the tolerance band. A rejected
// aggregate keeps the stored value but still advances the update time,
// so a runaway feed cannot retry every cycle.
func (i *Integration) Update(ctx context.Context, sources []feed.Source) (bool, int64, error) {
	var accepted bool
	var aggregate int64
	err := i.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var st model.OracleIntegrationState
		if err := tx.First(&st, 1).Error; err != nil {
			return err
		}

		now := i.eng.Now().Unix()
		if st.LastUpdateTime != 0 && now-st.LastUpdateTime < st.UpdateIntervalSec {
			return engine.Errorf(engine.KindTooEarly,
				"update interval not elapsed, %ds remaining",
				st.UpdateIntervalSec-(now-st.LastUpdateTime))
		}

		var sum int64
		var reporting int64
		for _, src := range sources {
			rd, err := src.LatestRoundData(ctx)
			if err != nil {
				log.Printf("Feed source %s failed: %v", src.Name(), err)
				continue
			}
			sum += scalePrice(rd.Price, src.Decimals(), st.CanonicalDecimals)
			reporting++
		}
		if reporting == 0 {
			return engine.Errorf(engine.KindExternalCall, "no feed source answered")
		}
		aggregate = sum / reporting

		st.LastUpdateTime = now
		if st.CurrentValue == 0 || within(aggregate, st.CurrentValue, st.Tolerance) {
			st.CurrentValue = aggregate
			accepted = true
			if err := tx.Save(&st).Error; err != nil {
				return err
			}
			return rec.Append(tx, events.TopicOracleValueAccepted, 1, "", "", map[string]any{
				"value": aggregate,
			})
		}

		if err := tx.Save(&st).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicOracleOutOfTolerance, 1, "", "", map[string]any{
			"aggregate": aggregate,
			"current":   st.CurrentValue,
			"tolerance": st.Tolerance,
		})
	})
	if err != nil {
		return false, 0, err
	}
	return accepted, aggregate, nil
}

func within(candidate, current, tolerance int64) bool {
	delta := candidate - current
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

// scalePrice converts a price between fixed-point scales, truncating
// toward zero when scaling down.
func scalePrice(price int64, from, to int) int64 {
	for from < to {
		price *= 10
		from++
	}
	for from > to {
		price /= 10
		from--
	}
	return price
}
