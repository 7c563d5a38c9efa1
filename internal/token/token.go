package token

import "gorm.io/gorm"

// Escrow accounts held by the engine itself.
const (
	AllocationEscrow  = "escrow:allocation"
	MaintenanceEscrow = "escrow:maintenance"
)

// Token is the ERC-20-equivalent collaborator the engine settles
// against. Implementations run inside the caller's transaction; any
// returned error aborts the whole enclosing operation, so a failed
// transfer never leaves a partial ledger update behind.
type Token interface {
	BalanceOf(tx *gorm.DB, address string) (int64, error)
	Transfer(tx *gorm.DB, from, to string, amount int64) error
	TransferFrom(tx *gorm.DB, spender, from, to string, amount int64) error
}
