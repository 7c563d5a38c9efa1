package model

import "time"

// TokenAccount is a balance in the in-process ERC-20 style ledger the
// engine settles against.
type TokenAccount struct {
	Address   string `gorm:"primaryKey;size:128"`
	Balance   int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// TokenAllowance is a pre-authorized spending limit granted by an
// owner to a spender, consumed by escrowed transfers.
type TokenAllowance struct {
	Owner     string `gorm:"primaryKey;size:128"`
	Spender   string `gorm:"primaryKey;size:128"`
	Amount    int64  `gorm:"not null"`
	UpdatedAt time.Time
}
