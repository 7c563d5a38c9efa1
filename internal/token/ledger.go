package token

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/model"
)

// Ledger is the in-process Token implementation: balances and
// allowances as rows, mutated inside the caller's transaction.
type Ledger struct{}

// BalanceOf returns the balance of address, zero for unknown accounts.
func (Ledger) BalanceOf(tx *gorm.DB, address string) (int64, error) {
	var acct model.TokenAccount
	err := tx.First(&acct, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Mint credits freshly issued tokens to an account.
func (Ledger) Mint(tx *gorm.DB, to string, amount int64) error {
	if amount <= 0 {
		return engine.Errorf(engine.KindInvariant, "mint amount must be positive")
	}
	return credit(tx, to, amount)
}

// Approve sets the allowance spender may pull from owner.
func (Ledger) Approve(tx *gorm.DB, owner, spender string, amount int64) error {
	if amount < 0 {
		return engine.Errorf(engine.KindInvariant, "allowance must not be negative")
	}
	allowance := model.TokenAllowance{
		Owner:     owner,
		Spender:   spender,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "spender"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&allowance).Error
}

// Allowance returns the remaining allowance from owner to spender.
func (Ledger) Allowance(tx *gorm.DB, owner, spender string) (int64, error) {
	var allowance model.TokenAllowance
	err := tx.First(&allowance, "owner = ? AND spender = ?", owner, spender).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return allowance.Amount, nil
}

// Transfer moves amount from one account to another.
func (Ledger) Transfer(tx *gorm.DB, from, to string, amount int64) error {
	if amount <= 0 {
		return engine.Errorf(engine.KindExternalCall, "token: transfer amount must be positive")
	}
	if to == "" {
		return engine.Errorf(engine.KindExternalCall, "token: transfer to empty address")
	}
	if err := debit(tx, from, amount); err != nil {
		return err
	}
	return credit(tx, to, amount)
}

// TransferFrom moves amount from `from` on behalf of spender,
// consuming the pre-authorized allowance.
func (l Ledger) TransferFrom(tx *gorm.DB, spender, from, to string, amount int64) error {
	if spender != from {
		remaining, err := l.Allowance(tx, from, spender)
		if err != nil {
			return err
		}
		if remaining < amount {
			return engine.Errorf(engine.KindExternalCall,
				"token: allowance of %s for %s is %d, need %d", from, spender, remaining, amount)
		}
		err = tx.Model(&model.TokenAllowance{}).
			Where("owner = ? AND spender = ?", from, spender).
			Update("amount", remaining-amount).Error
		if err != nil {
			return err
		}
	}
	return l.Transfer(tx, from, to, amount)
}

func credit(tx *gorm.DB, address string, amount int64) error {
	var acct model.TokenAccount
	err := tx.First(&acct, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&model.TokenAccount{
			Address:   address,
			Balance:   amount,
			UpdatedAt: time.Now().UTC(),
		}).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&model.TokenAccount{}).
		Where("address = ?", address).
		Update("balance", acct.Balance+amount).Error
}

func debit(tx *gorm.DB, address string, amount int64) error {
	var acct model.TokenAccount
	err := tx.First(&acct, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && acct.Balance < amount) {
		return engine.Errorf(engine.KindExternalCall,
			"token: insufficient balance for %s", address)
	}
	if err != nil {
		return err
	}
	return tx.Model(&model.TokenAccount{}).
		Where("address = ?", address).
		Update("balance", acct.Balance-amount).Error
}
