package events

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"depin-engine-backend/internal/model"
)

// Recorder accumulates the events of one engine operation. Rows are
// written inside the operation's transaction, so a rollback discards
// them; delivery to push subscribers happens only after commit.
type Recorder struct {
	now     func() time.Time
	pending []model.Event
}

// NewRecorder creates a recorder stamping events with the given clock.
func NewRecorder(now func() time.Time) *Recorder {
	return &Recorder{now: now}
}

// Append writes one event row in tx and remembers it for post-commit
// delivery. The payload is marshaled to JSON.
func (r *Recorder) Append(tx *gorm.DB, topic string, entityID int64, actor, affected string, payload map[string]any) error {
	body := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = string(b)
	}

	ev := model.Event{
		Topic:     topic,
		EntityID:  entityID,
		Actor:     actor,
		Affected:  affected,
		Payload:   body,
		CreatedAt: r.now(),
	}
	if err := tx.Create(&ev).Error; err != nil {
		return err
	}

	// Topic rows back the subscription join table.
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.EventTopic{Name: topic}).Error; err != nil {
		return err
	}

	r.pending = append(r.pending, ev)
	return nil
}

// Committed returns the events recorded so far. Callers must only use
// this after the enclosing transaction has committed.
func (r *Recorder) Committed() []model.Event {
	return r.pending
}
