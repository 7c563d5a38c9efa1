package model

import "time"

// Engine capabilities. A grant row gives an address the named role.
const (
	RoleAdmin               = "admin"
	RoleResourceManager     = "resource_manager"
	RoleMaintenanceApprover = "maintenance_approver"
	RoleDeviceManager       = "device_manager"
)

// RoleGrant assigns a capability to a caller address.
type RoleGrant struct {
	ID        int64  `gorm:"primaryKey"`
	Address   string `gorm:"size:128;not null;uniqueIndex:idx_address_role"`
	Role      string `gorm:"size:32;not null;uniqueIndex:idx_address_role"`
	CreatedAt time.Time
}
