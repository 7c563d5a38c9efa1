package model

import "time"

// Event is the observable side effect of a successful state
// transition. Rows are written inside the same transaction as the
// mutation, so a rolled-back operation emits nothing.
type Event struct {
	ID        int64  `gorm:"primaryKey"`
	Topic     string `gorm:"size:64;not null;index"`
	EntityID  int64  `gorm:"not null"`
	Actor     string `gorm:"size:128"`
	Affected  string `gorm:"size:128"`
	Payload   string
	CreatedAt time.Time `gorm:"not null"`
}

// EventTopic exists so push subscriptions can reference topics through
// a join table.
type EventTopic struct {
	Name string `gorm:"primaryKey;size:64"`
}
