package model

import "time"

// Oracle payload kinds, fixed at registration so reads never have to
// guess how to decode a report.
const (
	PayloadNumeric = "numeric"
	PayloadRaw     = "raw"
)

// Oracle is one registered data source. The primary key doubles as
// registration order, which is the enumeration order of valid oracles.
type Oracle struct {
	ID          int64  `gorm:"primaryKey"`
	Address     string `gorm:"size:128;not null;uniqueIndex"`
	PayloadKind string `gorm:"size:16;not null"`
	Value       int64
	Raw         []byte
	DataHash    string `gorm:"size:64"`
	LastUpdated *time.Time
	Active      bool `gorm:"not null"`
	CreatedAt   time.Time
}

// OracleSetState is the singleton row holding the quorum for the
// oracle set: the minimum count of active, previously-reporting
// oracles required for aggregation or verification to succeed.
type OracleSetState struct {
	ID     int64 `gorm:"primaryKey"`
	Quorum int   `gorm:"not null"`
}

// OracleIntegrationState is the singleton row for the tolerance-gated
// accepted value fed by external price sources. LastUpdateTime (unix
// seconds, zero until the first decision cycle) advances on every
// decision, accepted or rejected, once the interval has elapsed.
type OracleIntegrationState struct {
	ID                int64 `gorm:"primaryKey"`
	CurrentValue      int64 `gorm:"not null"`
	LastUpdateTime    int64 `gorm:"not null"`
	UpdateIntervalSec int64 `gorm:"not null"`
	Tolerance         int64 `gorm:"not null"`
	CanonicalDecimals int   `gorm:"not null"`
}
