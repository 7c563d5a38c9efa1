package engine

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"depin-engine-backend/internal/model"
)

// HasRole reports whether the caller holds the given role.
func HasRole(tx *gorm.DB, caller, role string) (bool, error) {
	var n int64
	err := tx.Model(&model.RoleGrant{}).
		Where("address = ? AND role = ?", caller, role).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RequireRole fails with an authorization error unless the caller
// holds the given role.
func RequireRole(tx *gorm.DB, caller, role string) error {
	ok, err := HasRole(tx, caller, role)
	if err != nil {
		return err
	}
	if !ok {
		return Errorf(KindUnauthorized, "caller %s lacks role %s", caller, role)
	}
	return nil
}

// RequireAdmin fails unless the caller holds the admin role.
func RequireAdmin(tx *gorm.DB, caller string) error {
	return RequireRole(tx, caller, model.RoleAdmin)
}

// GrantRole assigns a role to an address, idempotently.
func GrantRole(tx *gorm.DB, address, role string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.RoleGrant{Address: address, Role: role}).Error
}
