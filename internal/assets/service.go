package assets

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/model"
)

// Service is the asset registry: unique-ownership entries with a
// single approved delegate, a freeze toggle, and hard destruction.
// States: active <-> frozen, and active/frozen -> destroyed (the row
// and its maintenance history are deleted outright).
type Service struct {
	eng *engine.Engine
}

// NewService creates the registry on an engine.
func NewService(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// Create registers an asset owned by the caller.
func (s *Service) Create(ctx context.Context, caller, name, metadataURI string) (*model.Asset, error) {
	if name == "" {
		return nil, engine.Errorf(engine.KindInvariant, "asset name must not be empty")
	}
	if caller == "" {
		return nil, engine.Errorf(engine.KindInvariant, "caller address must not be empty")
	}

	var asset model.Asset
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		now := s.eng.Now()
		asset = model.Asset{
			Name:        name,
			MetadataURI: metadataURI,
			Owner:       caller,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&asset).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAssetCreated, asset.ID, caller, "", map[string]any{
			"name": name,
		})
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// Transfer moves ownership to `to`. Callable by the current owner or
// the single approved delegate; the approval is cleared on success.
// Frozen assets cannot move.
func (s *Service) Transfer(ctx context.Context, caller string, id int64, to string) error {
	if to == "" {
		return engine.Errorf(engine.KindInvariant, "transfer to empty address")
	}
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var asset model.Asset
		if err := loadAsset(tx, id, &asset); err != nil {
			return err
		}
		if caller != asset.Owner && (asset.Approved == "" || caller != asset.Approved) {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is neither owner nor approved for asset %d", caller, id)
		}
		if asset.Frozen {
			return engine.Errorf(engine.KindWrongState, "asset %d is frozen", id)
		}

		from := asset.Owner
		asset.Owner = to
		asset.Approved = ""
		asset.UpdatedAt = s.eng.Now()
		if err := tx.Save(&asset).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAssetTransferred, id, caller, to, map[string]any{
			"from": from,
		})
	})
}

// Approve sets the single transfer delegate. Owner only; self-approval
// is rejected; an empty address clears the delegate.
func (s *Service) Approve(ctx context.Context, caller string, id int64, to string) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var asset model.Asset
		if err := loadAsset(tx, id, &asset); err != nil {
			return err
		}
		if caller != asset.Owner {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the owner of asset %d", caller, id)
		}
		if to == asset.Owner {
			return engine.Errorf(engine.KindInvariant, "cannot approve the current owner")
		}

		asset.Approved = to
		asset.UpdatedAt = s.eng.Now()
		if err := tx.Save(&asset).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAssetApproved, id, caller, to, nil)
	})
}

// Freeze blocks transfers of the asset. Owner or admin; freezing an
// already-frozen asset is rejected.
func (s *Service) Freeze(ctx context.Context, caller string, id int64) error {
	return s.setFrozen(ctx, caller, id, true)
}

// Unfreeze re-enables transfers. Owner or admin; rejected when the
// asset is not frozen.
func (s *Service) Unfreeze(ctx context.Context, caller string, id int64) error {
	return s.setFrozen(ctx, caller, id, false)
}

func (s *Service) setFrozen(ctx context.Context, caller string, id int64, frozen bool) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var asset model.Asset
		if err := loadAsset(tx, id, &asset); err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(tx, caller, asset.Owner, id); err != nil {
			return err
		}
		if asset.Frozen == frozen {
			if frozen {
				return engine.Errorf(engine.KindWrongState, "asset %d is already frozen", id)
			}
			return engine.Errorf(engine.KindWrongState, "asset %d is not frozen", id)
		}

		asset.Frozen = frozen
		asset.UpdatedAt = s.eng.Now()
		if err := tx.Save(&asset).Error; err != nil {
			return err
		}
		topic := events.TopicAssetFrozen
		if !frozen {
			topic = events.TopicAssetUnfrozen
		}
		return rec.Append(tx, topic, id, caller, "", nil)
	})
}

// Destroy removes the asset and all of its maintenance history. Owner
// or admin. Terminal: the id is never reused for lookups afterwards.
func (s *Service) Destroy(ctx context.Context, caller string, id int64) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var asset model.Asset
		if err := loadAsset(tx, id, &asset); err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(tx, caller, asset.Owner, id); err != nil {
			return err
		}

		if err := tx.Where("asset_id = ?", id).Delete(&model.MaintenanceRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Asset{}, id).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicAssetDestroyed, id, caller, "", nil)
	})
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, id int64) (*model.Asset, error) {
	var asset model.Asset
	if err := loadAsset(s.eng.DB().WithContext(ctx), id, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListByOwner returns the owner's assets in creation order. The order
// is stable across removals since rows are keyed by sequential id.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]model.Asset, error) {
	var out []model.Asset
	err := s.eng.DB().WithContext(ctx).
		Where("owner = ?", owner).Order("id").Find(&out).Error
	return out, err
}

func requireOwnerOrAdmin(tx *gorm.DB, caller, owner string, id int64) error {
	if caller == owner {
		return nil
	}
	ok, err := engine.HasRole(tx, caller, model.RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return engine.Errorf(engine.KindUnauthorized,
			"caller %s is neither owner nor admin for asset %d", caller, id)
	}
	return nil
}

func loadAsset(tx *gorm.DB, id int64, asset *model.Asset) error {
	err := tx.First(asset, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errorf(engine.KindNotFound, "asset %d not found", id)
	}
	return err
}
