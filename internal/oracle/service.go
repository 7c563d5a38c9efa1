package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"

	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/model"
)

// Service maintains the registered oracle set and computes
// quorum-gated aggregates over it. An oracle is "valid" once it is
// active and has reported at least once; valid oracles are enumerated
// in registration order.
type Service struct {
	eng *engine.Engine
}

// NewService creates the oracle set on an engine.
func NewService(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// EnsureSetState seeds the singleton quorum row.
func EnsureSetState(db *gorm.DB, quorum int) error {
	var st model.OracleSetState
	err := db.First(&st, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&model.OracleSetState{ID: 1, Quorum: quorum}).Error
	}
	return err
}

// Register adds a data source under an unused address, fixing its
// payload kind. Admin only.
func (s *Service) Register(ctx context.Context, caller, address, payloadKind string) (*model.Oracle, error) {
	if address == "" {
		return nil, engine.Errorf(engine.KindInvariant, "oracle address must not be empty")
	}
	if payloadKind != model.PayloadNumeric && payloadKind != model.PayloadRaw {
		return nil, engine.Errorf(engine.KindInvariant, "unknown payload kind %q", payloadKind)
	}

	var o model.Oracle
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.Oracle{}).Where("address = ?", address).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return engine.Errorf(engine.KindWrongState, "oracle %s is already registered", address)
		}

		o = model.Oracle{
			Address:     address,
			PayloadKind: payloadKind,
			Active:      true,
			CreatedAt:   s.eng.Now(),
		}
		if err := tx.Create(&o).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicOracleRegistered, o.ID, caller, address, map[string]any{
			"payload_kind": payloadKind,
		})
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Deactivate switches an oracle off. One-way: there is no reactivation
// path, and deactivating twice is rejected. Admin only.
func (s *Service) Deactivate(ctx context.Context, caller, address string) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var o model.Oracle
		if err := loadOracle(tx, address, &o); err != nil {
			return err
		}
		if !o.Active {
			return engine.Errorf(engine.KindWrongState, "oracle %s is already inactive", address)
		}
		if err := tx.Model(&model.Oracle{}).Where("address = ?", address).
			Update("active", false).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicOracleDeactivated, o.ID, caller, address, nil)
	})
}

// Remove deletes an oracle from the set. Admin only.
func (s *Service) Remove(ctx context.Context, caller, address string) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var o model.Oracle
		if err := loadOracle(tx, address, &o); err != nil {
			return err
		}
		if err := tx.Delete(&model.Oracle{}, o.ID).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicOracleRemoved, o.ID, caller, address, nil)
	})
}

// SubmitNumeric records a numeric report for a registered oracle.
// Oracles report for themselves; an admin may report on an oracle's
// behalf.
func (s *Service) SubmitNumeric(ctx context.Context, caller, address string, value int64) error {
	return s.submit(ctx, caller, address, model.PayloadNumeric, value, nil)
}

// SubmitRaw records an opaque-bytes report for a registered oracle,
// under the same caller rules as SubmitNumeric.
func (s *Service) SubmitRaw(ctx context.Context, caller, address string, data []byte) error {
	if len(data) == 0 {
		return engine.Errorf(engine.KindInvariant, "raw payload must not be empty")
	}
	return s.submit(ctx, caller, address, model.PayloadRaw, 0, data)
}

func (s *Service) submit(ctx context.Context, caller, address, kind string, value int64, raw []byte) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var o model.Oracle
		err := tx.First(&o, "address = ?", address).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Errorf(engine.KindUnauthorized, "%s is not a registered oracle", address)
		}
		if err != nil {
			return err
		}
		if caller != address {
			if err := engine.RequireAdmin(tx, caller); err != nil {
				return engine.Errorf(engine.KindUnauthorized,
					"%s cannot report for oracle %s", caller, address)
			}
		}
		if o.PayloadKind != kind {
			return engine.Errorf(engine.KindWrongState,
				"oracle %s reports %s payloads, not %s", address, o.PayloadKind, kind)
		}

		now := s.eng.Now()
		o.Value = value
		o.Raw = raw
		if kind == model.PayloadNumeric {
			o.DataHash = NumericHash(value)
		} else {
			o.DataHash = RawHash(raw)
		}
		o.LastUpdated = &now
		if err := tx.Save(&o).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicOracleUpdated, o.ID, caller, address, nil)
	})
}

// SetQuorum changes the minimum valid-oracle count. Admin only;
// requires 0 < n <= registered oracle count.
func (s *Service) SetQuorum(ctx context.Context, caller string, quorum int) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&model.Oracle{}).Count(&count).Error; err != nil {
			return err
		}
		if quorum <= 0 || int64(quorum) > count {
			return engine.Errorf(engine.KindInvariant,
				"quorum %d must be in 1..%d", quorum, count)
		}
		if err := tx.Model(&model.OracleSetState{}).Where("id = ?", 1).
			Update("quorum", quorum).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicOracleQuorumChanged, 1, caller, "", map[string]any{
			"quorum": quorum,
		})
	})
}

// Quorum returns the current quorum.
func (s *Service) Quorum(ctx context.Context) (int, error) {
	var st model.OracleSetState
	if err := s.eng.DB().WithContext(ctx).First(&st, 1).Error; err != nil {
		return 0, err
	}
	return st.Quorum, nil
}

// ValidOracles returns the active, previously-reporting oracles in
// registration order.
func (s *Service) ValidOracles(ctx context.Context) ([]model.Oracle, error) {
	return validOracles(s.eng.DB().WithContext(ctx))
}

// Aggregate computes the truncated mean of the valid numeric reports.
// Both the valid-oracle count and the numeric-report count must meet
// quorum; oracles reporting raw payloads count toward the former but
// are excluded from the mean.
func (s *Service) Aggregate(ctx context.Context) (int64, error) {
	db := s.eng.DB().WithContext(ctx)

	var st model.OracleSetState
	if err := db.First(&st, 1).Error; err != nil {
		return 0, err
	}
	valid, err := validOracles(db)
	if err != nil {
		return 0, err
	}
	if len(valid) < st.Quorum {
		return 0, engine.Errorf(engine.KindInvariant,
			"%d valid oracles, quorum is %d", len(valid), st.Quorum)
	}

	var sum int64
	var numeric int
	for _, o := range valid {
		if o.PayloadKind != model.PayloadNumeric {
			continue
		}
		sum += o.Value
		numeric++
	}
	if numeric < st.Quorum {
		return 0, engine.Errorf(engine.KindInvariant,
			"%d numeric reports, quorum is %d", numeric, st.Quorum)
	}
	return sum / int64(numeric), nil
}

// Verify reports whether at least quorum valid oracles have stored the
// candidate payload, by hash equality.
func (s *Service) Verify(ctx context.Context, data []byte) (bool, error) {
	db := s.eng.DB().WithContext(ctx)

	var st model.OracleSetState
	if err := db.First(&st, 1).Error; err != nil {
		return false, err
	}
	valid, err := validOracles(db)
	if err != nil {
		return false, err
	}
	if len(valid) < st.Quorum {
		return false, engine.Errorf(engine.KindInvariant,
			"%d valid oracles, quorum is %d", len(valid), st.Quorum)
	}

	candidate := RawHash(data)
	matches := 0
	for _, o := range valid {
		if o.DataHash == candidate {
			matches++
		}
	}
	return matches >= st.Quorum, nil
}

func validOracles(db *gorm.DB) ([]model.Oracle, error) {
	var out []model.Oracle
	err := db.Where("active = ? AND last_updated IS NOT NULL", true).
		Order("id").Find(&out).Error
	return out, err
}

func loadOracle(tx *gorm.DB, address string, o *model.Oracle) error {
	err := tx.First(o, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errorf(engine.KindNotFound, "oracle %s not found", address)
	}
	return err
}

// RawHash is the canonical hash of an opaque oracle payload.
func RawHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NumericHash hashes a numeric report through its 8-byte big-endian
// encoding, so numeric and raw reports share one hash space.
func NumericHash(value int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(value))
	return RawHash(buf[:])
}
