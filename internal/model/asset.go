package model

import "time"

// Asset is an NFT-style registry entry for a physical asset. Ownership
// is exclusive; a single approved delegate may transfer on the owner's
// behalf and is cleared on every transfer. Frozen assets cannot move.
// Destruction deletes the row outright, there is no tombstone.
type Asset struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"size:256;not null"`
	MetadataURI string `gorm:"size:512"`
	Owner       string `gorm:"size:128;not null;index"`
	Approved    string `gorm:"size:128"`
	Frozen      bool   `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
