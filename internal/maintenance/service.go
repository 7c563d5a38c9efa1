package maintenance

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/model"
	"depin-engine-backend/internal/token"
)

// Service runs the per-asset maintenance workflow:
//
//	Pending -> Approved -> InProgress -> Completed
//	Pending -> Canceled (requester cancel, or approver reject)
//	Approved -> Canceled (requester only, before work starts)
//
// Completion pays the assigned provider from the maintenance escrow in
// the same transaction, so an underfunded escrow leaves the request
// in progress.
type Service struct {
	eng *engine.Engine
	tok token.Token
}

// NewService wires the workflow against an engine and a token
// collaborator.
func NewService(eng *engine.Engine, tok token.Token) *Service {
	return &Service{eng: eng, tok: tok}
}

// Request opens a maintenance request for an existing asset.
func (s *Service) Request(ctx context.Context, caller string, assetID int64, description string) (*model.MaintenanceRequest, error) {
	if description == "" {
		return nil, engine.Errorf(engine.KindInvariant, "description must not be empty")
	}

	var req model.MaintenanceRequest
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var asset model.Asset
		err := tx.First(&asset, assetID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Errorf(engine.KindNotFound, "asset %d not found", assetID)
		}
		if err != nil {
			return err
		}

		now := s.eng.Now()
		req = model.MaintenanceRequest{
			AssetID:     assetID,
			Description: description,
			Requester:   caller,
			Status:      model.MaintenancePending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceRequested, req.ID, caller, "", map[string]any{
			"asset_id": assetID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Approve accepts a pending request, fixing its cost and assigned
// service provider. Maintenance-approver only.
func (s *Service) Approve(ctx context.Context, caller string, id, cost int64, provider string) error {
	if cost < 0 {
		return engine.Errorf(engine.KindInvariant, "cost must not be negative")
	}
	if provider == "" {
		return engine.Errorf(engine.KindInvariant, "service provider must not be empty")
	}
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireRole(tx, caller, model.RoleMaintenanceApprover); err != nil {
			return err
		}
		var req model.MaintenanceRequest
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if req.Status != model.MaintenancePending {
			return engine.Errorf(engine.KindWrongState,
				"request %d is %s, not pending", id, req.Status)
		}

		req.Status = model.MaintenanceApproved
		req.Cost = cost
		req.ApprovedBy = caller
		req.ServiceProvider = provider
		req.UpdatedAt = s.eng.Now()
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceApproved, id, caller, provider, map[string]any{
			"cost": cost,
		})
	})
}

// Start moves an approved request into progress. Assigned provider
// only.
func (s *Service) Start(ctx context.Context, caller string, id int64) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var req model.MaintenanceRequest
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if caller != req.ServiceProvider {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the assigned provider for request %d", caller, id)
		}
		if req.Status != model.MaintenanceApproved {
			return engine.Errorf(engine.KindWrongState,
				"request %d is %s, not approved", id, req.Status)
		}

		req.Status = model.MaintenanceInProgress
		req.UpdatedAt = s.eng.Now()
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceStarted, id, caller, "", nil)
	})
}

// Complete finishes in-progress work and, for a non-zero cost, pays
// the provider from the maintenance escrow. Payment and completion
// commit together or not at all. Assigned provider only, re-entrancy
// guarded.
func (s *Service) Complete(ctx context.Context, caller string, id int64) error {
	return s.eng.ExecGuarded(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var req model.MaintenanceRequest
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if caller != req.ServiceProvider {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the assigned provider for request %d", caller, id)
		}
		if req.Status != model.MaintenanceInProgress {
			return engine.Errorf(engine.KindWrongState,
				"request %d is %s, not in progress", id, req.Status)
		}

		if req.Cost > 0 {
			if err := s.tok.Transfer(tx, token.MaintenanceEscrow, req.ServiceProvider, req.Cost); err != nil {
				return err
			}
		}

		req.Status = model.MaintenanceCompleted
		req.UpdatedAt = s.eng.Now()
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceCompleted, id, caller, req.Requester, map[string]any{
			"paid": req.Cost,
		})
	})
}

// Cancel withdraws a request before work starts. Requester only, from
// Pending or Approved.
func (s *Service) Cancel(ctx context.Context, caller string, id int64) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var req model.MaintenanceRequest
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if caller != req.Requester {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the requester of request %d", caller, id)
		}
		if req.Status != model.MaintenancePending && req.Status != model.MaintenanceApproved {
			return engine.Errorf(engine.KindWrongState,
				"request %d is %s, cannot cancel", id, req.Status)
		}

		req.Status = model.MaintenanceCanceled
		req.UpdatedAt = s.eng.Now()
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceCanceled, id, caller, "", nil)
	})
}

// Reject declines a pending request. Maintenance-approver only.
func (s *Service) Reject(ctx context.Context, caller string, id int64) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireRole(tx, caller, model.RoleMaintenanceApprover); err != nil {
			return err
		}
		var req model.MaintenanceRequest
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if req.Status != model.MaintenancePending {
			return engine.Errorf(engine.KindWrongState,
				"request %d is %s, not pending", id, req.Status)
		}

		req.Status = model.MaintenanceCanceled
		req.UpdatedAt = s.eng.Now()
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceRejected, id, caller, req.Requester, nil)
	})
}

// DepositFunds pulls tokens from the caller into the maintenance
// escrow that later pays providers. Admin only, re-entrancy guarded.
func (s *Service) DepositFunds(ctx context.Context, caller string, amount int64) error {
	if amount <= 0 {
		return engine.Errorf(engine.KindInvariant, "deposit amount must be positive")
	}
	return s.eng.ExecGuarded(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, caller); err != nil {
			return err
		}
		if err := s.tok.TransferFrom(tx, token.MaintenanceEscrow, caller, token.MaintenanceEscrow, amount); err != nil {
			return err
		}
		return rec.Append(tx, events.TopicMaintenanceFunded, 0, caller, "", map[string]any{
			"amount": amount,
		})
	})
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id int64) (*model.MaintenanceRequest, error) {
	var req model.MaintenanceRequest
	if err := loadRequest(s.eng.DB().WithContext(ctx), id, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ActiveRequests returns an asset's non-terminal requests in creation
// order.
func (s *Service) ActiveRequests(ctx context.Context, assetID int64) ([]model.MaintenanceRequest, error) {
	var out []model.MaintenanceRequest
	err := s.eng.DB().WithContext(ctx).
		Where("asset_id = ? AND status NOT IN ?", assetID,
			[]string{model.MaintenanceCompleted, model.MaintenanceCanceled}).
		Order("id").Find(&out).Error
	return out, err
}

func loadRequest(tx *gorm.DB, id int64, req *model.MaintenanceRequest) error {
	err := tx.First(req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errorf(engine.KindNotFound, "maintenance request %d not found", id)
	}
	return err
}
