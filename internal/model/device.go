package model

import "time"

// Device is a registered IoT device identity. Data ingestion requires
// the device to be active and the sender to be the owner or on the
// device's authorized-sender list.
type Device struct {
	ID          int64  `gorm:"primaryKey"`
	Address     string `gorm:"size:128;not null;uniqueIndex"`
	DeviceType  string `gorm:"size:64;not null"`
	MetadataURI string `gorm:"size:512"`
	Owner       string `gorm:"size:128;not null;index"`
	Active      bool   `gorm:"not null"`
	LastDataAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeviceDataEntry is one entry of the per-device append-only data log,
// keyed by content hash. The log is bounded per device.
type DeviceDataEntry struct {
	ID        int64  `gorm:"primaryKey"`
	DeviceID  int64  `gorm:"not null;uniqueIndex:idx_device_hash"`
	Hash      string `gorm:"size:128;not null;uniqueIndex:idx_device_hash"`
	Payload   []byte
	CreatedAt time.Time
}

// DeviceSender is an allow-list entry permitting an address to submit
// data for a device.
type DeviceSender struct {
	ID       int64  `gorm:"primaryKey"`
	DeviceID int64  `gorm:"not null;uniqueIndex:idx_device_sender"`
	Address  string `gorm:"size:128;not null;uniqueIndex:idx_device_sender"`
}
