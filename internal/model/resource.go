package model

import "time"

// Resource represents a pooled physical resource backed by an ERC-20
// style payment token. Invariant: 0 <= AvailableSupply <= TotalSupply,
// and the difference is exactly the sum of all Allocation amounts.
type Resource struct {
	ID              int64  `gorm:"primaryKey"`
	Name            string `gorm:"size:128;not null"`
	TotalSupply     int64  `gorm:"not null"`
	AvailableSupply int64  `gorm:"not null"`
	PricePerUnit    int64  `gorm:"not null"`
	TokenAddress    string `gorm:"size:128;not null"`
	Active          bool   `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllocationRequest is a pending or fulfilled claim against a
// resource's pool. Creating a request does not reserve supply;
// availability is re-checked at fulfillment time.
type AllocationRequest struct {
	ID          int64  `gorm:"primaryKey"`
	ResourceID  int64  `gorm:"index;not null"`
	Requester   string `gorm:"size:128;not null"`
	Amount      int64  `gorm:"not null"`
	Fulfilled   bool   `gorm:"not null"`
	CreatedAt   time.Time
	FulfilledAt *time.Time
}

// Allocation is the per-holder allocated balance for one resource.
type Allocation struct {
	ID         int64  `gorm:"primaryKey"`
	Holder     string `gorm:"size:128;not null;uniqueIndex:idx_holder_resource"`
	ResourceID int64  `gorm:"not null;uniqueIndex:idx_holder_resource"`
	Amount     int64  `gorm:"not null"`
	UpdatedAt  time.Time
}
