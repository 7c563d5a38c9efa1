package model

import "time"

// PushSubscription holds the information for a browser push
// subscription and the event topics it wants delivered.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Topics []*EventTopic `gorm:"many2many:subscription_topic_mapping;"`
}
