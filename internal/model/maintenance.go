package model

import "time"

// Maintenance request statuses. Completed and Canceled are terminal.
const (
	MaintenancePending    = "pending"
	MaintenanceApproved   = "approved"
	MaintenanceInProgress = "in_progress"
	MaintenanceCompleted  = "completed"
	MaintenanceCanceled   = "canceled"
)

// MaintenanceRequest tracks scheduled service work on an asset from
// creation through approval, execution and settlement.
type MaintenanceRequest struct {
	ID              int64  `gorm:"primaryKey"`
	AssetID         int64  `gorm:"index;not null"`
	Description     string `gorm:"size:512;not null"`
	Requester       string `gorm:"size:128;not null"`
	Cost            int64  `gorm:"not null"`
	ApprovedBy      string `gorm:"size:128"`
	ServiceProvider string `gorm:"size:128"`
	Status          string `gorm:"size:32;not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
