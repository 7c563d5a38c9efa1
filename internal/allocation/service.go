package allocation

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/model"
	"depin-engine-backend/internal/token"
)

// Service implements the resource ledger: pooled supply accounting
// with escrowed token settlement. Supply-changing paths re-validate
// availability inside their own transaction, never relying on checks
// made in an earlier call.
type Service struct {
	eng *engine.Engine
	tok token.Token
}

// NewService wires the ledger against an engine and a token
// collaborator.
func NewService(eng *engine.Engine, tok token.Token) *Service {
	return &Service{eng: eng, tok: tok}
}

// AddResourceInput carries the parameters of AddResource.
type AddResourceInput struct {
	Caller       string
	Name         string
	TotalSupply  int64
	PricePerUnit int64
	TokenAddress string
}

// AddResource creates a resource pool with the full supply available.
// Admin only.
func (s *Service) AddResource(ctx context.Context, in AddResourceInput) (*model.Resource, error) {
	if in.Name == "" {
		return nil, engine.Errorf(engine.KindInvariant, "resource name must not be empty")
	}
	if in.TotalSupply <= 0 {
		return nil, engine.Errorf(engine.KindInvariant, "total supply must be positive")
	}
	if in.PricePerUnit <= 0 {
		return nil, engine.Errorf(engine.KindInvariant, "price per unit must be positive")
	}
	if in.TokenAddress == "" {
		return nil, engine.Errorf(engine.KindInvariant, "token address must not be empty")
	}

	var res model.Resource
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, in.Caller); err != nil {
			return err
		}
		now := s.eng.Now()
		res = model.Resource{
			Name:            in.Name,
			TotalSupply:     in.TotalSupply,
			AvailableSupply: in.TotalSupply,
			PricePerUnit:    in.PricePerUnit,
			TokenAddress:    in.TokenAddress,
			Active:          true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&res).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicResourceCreated, res.ID, in.Caller, "", map[string]any{
			"name":         res.Name,
			"total_supply": res.TotalSupply,
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateResource changes supply and pricing while preserving the
// amount currently allocated. Resource-manager only.
func (s *Service) UpdateResource(ctx context.Context, caller string, id, newTotalSupply, newPricePerUnit int64) (*model.Resource, error) {
	if newPricePerUnit <= 0 {
		return nil, engine.Errorf(engine.KindInvariant, "price per unit must be positive")
	}

	var res model.Resource
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireRole(tx, caller, model.RoleResourceManager); err != nil {
			return err
		}
		if err := loadResource(tx, id, &res); err != nil {
			return err
		}
		if !res.Active {
			return engine.Errorf(engine.KindWrongState, "resource %d is inactive", id)
		}

		allocated := res.TotalSupply - res.AvailableSupply
		if newTotalSupply < allocated {
			return engine.Errorf(engine.KindInvariant,
				"new total supply %d is below allocated amount %d", newTotalSupply, allocated)
		}

		res.TotalSupply = newTotalSupply
		res.AvailableSupply = newTotalSupply - allocated
		res.PricePerUnit = newPricePerUnit
		res.UpdatedAt = s.eng.Now()
		if err := tx.Save(&res).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicResourceUpdated, res.ID, caller, "", map[string]any{
			"total_supply":   res.TotalSupply,
			"price_per_unit": res.PricePerUnit,
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DeactivateResource retires a resource. One-way: no supply or
// allocation operation is permitted afterwards, and there is no
// reactivation path.
func (s *Service) DeactivateResource(ctx context.Context, caller string, id int64) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireRole(tx, caller, model.RoleResourceManager); err != nil {
			return err
		}
		var res model.Resource
		if err := loadResource(tx, id, &res); err != nil {
			return err
		}
		if !res.Active {
			return engine.Errorf(engine.KindWrongState, "resource %d is already inactive", id)
		}
		res.Active = false
		res.UpdatedAt = s.eng.Now()
		if err := tx.Save(&res).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicResourceDeactivated, res.ID, caller, "", nil)
	})
}

// RequestAllocation records a pending claim against a resource's pool.
// Availability is checked here but NOT reserved: supply is debited at
// fulfillment only, so pending requests approved against the same
// supply can starve each other and the later fulfillment fails its
// re-check. That race is the canonical behavior and is kept on
// purpose.
func (s *Service) RequestAllocation(ctx context.Context, caller string, resourceID, amount int64) (*model.AllocationRequest, error) {
	if amount <= 0 {
		return nil, engine.Errorf(engine.KindInvariant, "allocation amount must be positive")
	}

	var req model.AllocationRequest
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var res model.Resource
		if err := loadResource(tx, resourceID, &res); err != nil {
			return err
		}
		if !res.Active {
			return engine.Errorf(engine.KindWrongState, "resource %d is inactive", resourceID)
		}
		if res.AvailableSupply < amount {
			return engine.Errorf(engine.KindInvariant,
				"available supply %d is below requested %d", res.AvailableSupply, amount)
		}

		req = model.AllocationRequest{
			ResourceID: resourceID,
			Requester:  caller,
			Amount:     amount,
			CreatedAt:  s.eng.Now(),
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAllocationRequested, req.ID, caller, "", map[string]any{
			"resource_id": resourceID,
			"amount":      amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FulfillRequest settles a pending request: re-validates availability,
// debits supply, credits the requester's allocation and pulls
// amount*pricePerUnit into escrow via the pre-authorized allowance.
// A failed token pull rolls the whole operation back. Resource-manager
// only, re-entrancy guarded.
func (s *Service) FulfillRequest(ctx context.Context, caller string, requestID int64) error {
	return s.eng.ExecGuarded(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireRole(tx, caller, model.RoleResourceManager); err != nil {
			return err
		}

		var req model.AllocationRequest
		err := tx.First(&req, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Errorf(engine.KindNotFound, "allocation request %d not found", requestID)
		}
		if err != nil {
			return err
		}
		if req.Fulfilled {
			return engine.Errorf(engine.KindWrongState, "request %d is already fulfilled", requestID)
		}

		var res model.Resource
		if err := loadResource(tx, req.ResourceID, &res); err != nil {
			return err
		}
		if !res.Active {
			return engine.Errorf(engine.KindWrongState, "resource %d is inactive", res.ID)
		}
		// The availability check at request time may be stale by now.
		if res.AvailableSupply < req.Amount {
			return engine.Errorf(engine.KindInvariant,
				"available supply %d is below requested %d", res.AvailableSupply, req.Amount)
		}

		res.AvailableSupply -= req.Amount
		res.UpdatedAt = s.eng.Now()
		if err := tx.Save(&res).Error; err != nil {
			return err
		}
		if err := adjustAllocation(tx, req.Requester, res.ID, req.Amount); err != nil {
			return err
		}

		price, err := settlementAmount(req.Amount, res.PricePerUnit)
		if err != nil {
			return err
		}
		if err := s.tok.TransferFrom(tx, token.AllocationEscrow, req.Requester, token.AllocationEscrow, price); err != nil {
			return err
		}

		now := s.eng.Now()
		req.Fulfilled = true
		req.FulfilledAt = &now
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAllocationFulfilled, req.ID, caller, req.Requester, map[string]any{
			"resource_id": res.ID,
			"amount":      req.Amount,
			"paid":        price,
		})
	})
}

// Revoke returns part of the caller's allocation to the pool and
// refunds amount*pricePerUnit from escrow. Re-entrancy guarded.
func (s *Service) Revoke(ctx context.Context, caller string, resourceID, amount int64) error {
	if amount <= 0 {
		return engine.Errorf(engine.KindInvariant, "revoke amount must be positive")
	}
	return s.eng.ExecGuarded(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var res model.Resource
		if err := loadResource(tx, resourceID, &res); err != nil {
			return err
		}
		if !res.Active {
			return engine.Errorf(engine.KindWrongState, "resource %d is inactive", resourceID)
		}

		var alloc model.Allocation
		err := tx.First(&alloc, "holder = ? AND resource_id = ?", caller, resourceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && alloc.Amount < amount) {
			return engine.Errorf(engine.KindInvariant,
				"allocated balance of %s for resource %d is below %d", caller, resourceID, amount)
		}
		if err != nil {
			return err
		}

		if err := adjustAllocation(tx, caller, resourceID, -amount); err != nil {
			return err
		}
		res.AvailableSupply += amount
		res.UpdatedAt = s.eng.Now()
		if err := tx.Save(&res).Error; err != nil {
			return err
		}

		refund, err := settlementAmount(amount, res.PricePerUnit)
		if err != nil {
			return err
		}
		if err := s.tok.Transfer(tx, token.AllocationEscrow, caller, refund); err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAllocationRevoked, resourceID, caller, "", map[string]any{
			"amount":   amount,
			"refunded": refund,
		})
	})
}

// GrantBonus credits an allocation directly, bypassing payment. The
// supply is still debited so the ledger invariant holds. Admin only.
func (s *Service) GrantBonus(ctx context.Context, caller, holder string, resourceID, amount int64) error {
	if amount <= 0 {
		return engine.Errorf(engine.KindInvariant, "bonus amount must be positive")
	}
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var res model.Resource
		if err := loadResource(tx, resourceID, &res); err != nil {
			return err
		}
		if !res.Active {
			return engine.Errorf(engine.KindWrongState, "resource %d is inactive", resourceID)
		}
		if res.AvailableSupply < amount {
			return engine.Errorf(engine.KindInvariant,
				"available supply %d is below bonus %d", res.AvailableSupply, amount)
		}

		res.AvailableSupply -= amount
		res.UpdatedAt = s.eng.Now()
		if err := tx.Save(&res).Error; err != nil {
			return err
		}
		if err := adjustAllocation(tx, holder, resourceID, amount); err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAllocationBonus, resourceID, caller, holder, map[string]any{
			"amount": amount,
		})
	})
}

// WithdrawFunds sweeps tokens held in the allocation escrow. Admin
// only, re-entrancy guarded.
func (s *Service) WithdrawFunds(ctx context.Context, caller, to string, amount int64) error {
	if amount <= 0 {
		return engine.Errorf(engine.KindInvariant, "withdrawal amount must be positive")
	}
	return s.eng.ExecGuarded(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		if err := s.tok.Transfer(tx, token.AllocationEscrow, to, amount); err != nil {
			return err
		}
		return rec.Append(tx, events.TopicFundsWithdrawn, 0, caller, to, map[string]any{
			"amount": amount,
		})
	})
}

// GetResource returns one resource.
func (s *Service) GetResource(ctx context.Context, id int64) (*model.Resource, error) {
	var res model.Resource
	if err := loadResource(s.eng.DB().WithContext(ctx), id, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources returns every resource in creation order.
func (s *Service) ListResources(ctx context.Context) ([]model.Resource, error) {
	var out []model.Resource
	err := s.eng.DB().WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

// ListRequests returns a resource's allocation requests in creation
// order.
func (s *Service) ListRequests(ctx context.Context, resourceID int64) ([]model.AllocationRequest, error) {
	var out []model.AllocationRequest
	err := s.eng.DB().WithContext(ctx).
		Where("resource_id = ?", resourceID).Order("id").Find(&out).Error
	return out, err
}

// HolderAllocations returns the holder's non-zero allocated balances.
func (s *Service) HolderAllocations(ctx context.Context, holder string) ([]model.Allocation, error) {
	var out []model.Allocation
	err := s.eng.DB().WithContext(ctx).
		Where("holder = ? AND amount > 0", holder).Order("resource_id").Find(&out).Error
	return out, err
}

// settlementAmount is amount*pricePerUnit with an explicit overflow
// check: a product that wraps past int64 would otherwise slip through
// the positive-amount guards in the token ledger.
func settlementAmount(amount, pricePerUnit int64) (int64, error) {
	if amount > math.MaxInt64/pricePerUnit {
		return 0, engine.Errorf(engine.KindInvariant,
			"settlement of %d units at %d per unit overflows", amount, pricePerUnit)
	}
	return amount * pricePerUnit, nil
}

func loadResource(tx *gorm.DB, id int64, res *model.Resource) error {
	err := tx.First(res, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errorf(engine.KindNotFound, "resource %d not found", id)
	}
	return err
}

// adjustAllocation applies a signed delta to the (holder, resource)
// allocated balance, creating the row on first credit.
func adjustAllocation(tx *gorm.DB, holder string, resourceID, delta int64) error {
	var alloc model.Allocation
	err := tx.First(&alloc, "holder = ? AND resource_id = ?", holder, resourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if delta < 0 {
			return engine.Errorf(engine.KindInvariant,
				"no allocation of resource %d for %s", resourceID, holder)
		}
		return tx.Create(&model.Allocation{
			Holder:     holder,
			ResourceID: resourceID,
			Amount:     delta,
		}).Error
	}
	if err != nil {
		return err
	}
	if alloc.Amount+delta < 0 {
		return engine.Errorf(engine.KindInvariant,
			"allocation of resource %d for %s would go negative", resourceID, holder)
	}
	return tx.Model(&model.Allocation{}).
		Where("holder = ? AND resource_id = ?", holder, resourceID).
		Update("amount", alloc.Amount+delta).Error
}
