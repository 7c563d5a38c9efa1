package devices

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/model"
)

// Default per-device data log bounds.
const (
	DefaultMaxDataEntries = 256
	DefaultMaxDataSize    = 4096
)

// Service is the IoT device registry and bounded data store. Devices
// are registered by a device manager, owned by the registering party
// until ownership is transferred, and accept data only from the owner
// or the device's authorized-sender list while active.
type Service struct {
	eng *engine.Engine

	// Bounds on the per-device data log.
	MaxDataEntries int
	MaxDataSize    int
}

// NewService creates the registry with default data bounds.
func NewService(eng *engine.Engine) *Service {
	return &Service{
		eng:            eng,
		MaxDataEntries: DefaultMaxDataEntries,
		MaxDataSize:    DefaultMaxDataSize,
	}
}

// Register adds a device under an unused address. Device-manager only.
// Devices start active.
func (s *Service) Register(ctx context.Context, caller, address, deviceType, metadataURI string) (*model.Device, error) {
	if address == "" {
		return nil, engine.Errorf(engine.KindInvariant, "device address must not be empty")
	}
	if deviceType == "" {
		return nil, engine.Errorf(engine.KindInvariant, "device type must not be empty")
	}

	var dev model.Device
	err := s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireRole(tx, caller, model.RoleDeviceManager); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.Device{}).Where("address = ?", address).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return engine.Errorf(engine.KindWrongState, "device address %s is already registered", address)
		}

		now := s.eng.Now()
		dev = model.Device{
			Address:     address,
			DeviceType:  deviceType,
			MetadataURI: metadataURI,
			Owner:       caller,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&dev).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicDeviceRegistered, dev.ID, caller, "", map[string]any{
			"address":     address,
			"device_type": deviceType,
		})
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// Activate enables an inactive device. Owner or device manager;
// activating an active device is rejected.
func (s *Service) Activate(ctx context.Context, caller string, id int64) error {
	return s.setActive(ctx, caller, id, true)
}

// Deactivate disables an active device. Owner or device manager;
// deactivating an inactive device is rejected.
func (s *Service) Deactivate(ctx context.Context, caller string, id int64) error {
	return s.setActive(ctx, caller, id, false)
}

func (s *Service) setActive(ctx context.Context, caller string, id int64, active bool) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if err := requireOwnerOrManager(tx, caller, dev.Owner, id); err != nil {
			return err
		}
		if dev.Active == active {
			if active {
				return engine.Errorf(engine.KindWrongState, "device %d is already active", id)
			}
			return engine.Errorf(engine.KindWrongState, "device %d is already inactive", id)
		}

		dev.Active = active
		dev.UpdatedAt = s.eng.Now()
		if err := tx.Save(&dev).Error; err != nil {
			return err
		}
		topic := events.TopicDeviceActivated
		if !active {
			topic = events.TopicDeviceDeactivated
		}
		return rec.Append(tx, topic, id, caller, "", nil)
	})
}

// AuthorizeSender allows an address to submit data for the device.
// Owner only; duplicates are rejected.
func (s *Service) AuthorizeSender(ctx context.Context, caller string, id int64, sender string) error {
	if sender == "" {
		return engine.Errorf(engine.KindInvariant, "sender address must not be empty")
	}
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if caller != dev.Owner {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the owner of device %d", caller, id)
		}
		var n int64
		if err := tx.Model(&model.DeviceSender{}).
			Where("device_id = ? AND address = ?", id, sender).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return engine.Errorf(engine.KindWrongState,
				"sender %s is already authorized for device %d", sender, id)
		}
		if err := tx.Create(&model.DeviceSender{DeviceID: id, Address: sender}).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicDeviceSenderAuthorized, id, caller, sender, nil)
	})
}

// RevokeSender removes an address from the device's allow-list. Owner
// only.
func (s *Service) RevokeSender(ctx context.Context, caller string, id int64, sender string) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if caller != dev.Owner {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the owner of device %d", caller, id)
		}
		res := tx.Where("device_id = ? AND address = ?", id, sender).Delete(&model.DeviceSender{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return engine.Errorf(engine.KindNotFound,
				"sender %s is not authorized for device %d", sender, id)
		}
		return rec.Append(tx, events.TopicDeviceSenderRevoked, id, caller, sender, nil)
	})
}

// StoreData appends a payload to the device's data log, keyed by
// content hash. The device must be active, the caller must be the
// owner or an authorized sender, and the log bounds must hold.
func (s *Service) StoreData(ctx context.Context, caller string, id int64, hash string, payload []byte) error {
	if hash == "" {
		return engine.Errorf(engine.KindInvariant, "data hash must not be empty")
	}
	if len(payload) > s.MaxDataSize {
		return engine.Errorf(engine.KindInvariant,
			"payload of %d bytes exceeds limit %d", len(payload), s.MaxDataSize)
	}
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if !dev.Active {
			return engine.Errorf(engine.KindWrongState, "device %d is inactive", id)
		}
		if caller != dev.Owner {
			var n int64
			if err := tx.Model(&model.DeviceSender{}).
				Where("device_id = ? AND address = ?", id, caller).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return engine.Errorf(engine.KindUnauthorized,
					"caller %s is not authorized to send data for device %d", caller, id)
			}
		}

		var count int64
		if err := tx.Model(&model.DeviceDataEntry{}).
			Where("device_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(s.MaxDataEntries) {
			return engine.Errorf(engine.KindInvariant,
				"device %d data log is full (%d entries)", id, s.MaxDataEntries)
		}
		var dup int64
		if err := tx.Model(&model.DeviceDataEntry{}).
			Where("device_id = ? AND hash = ?", id, hash).Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return engine.Errorf(engine.KindWrongState,
				"hash %s is already stored for device %d", hash, id)
		}

		now := s.eng.Now()
		entry := model.DeviceDataEntry{
			DeviceID:  id,
			Hash:      hash,
			Payload:   payload,
			CreatedAt: now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		dev.LastDataAt = &now
		dev.UpdatedAt = now
		if err := tx.Save(&dev).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicDeviceDataStored, id, caller, "", map[string]any{
			"hash": hash,
			"size": len(payload),
		})
	})
}

// RemoveData deletes one entry from the device's data log. Owner or
// device manager.
func (s *Service) RemoveData(ctx context.Context, caller string, id int64, hash string) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if err := requireOwnerOrManager(tx, caller, dev.Owner, id); err != nil {
			return err
		}
		res := tx.Where("device_id = ? AND hash = ?", id, hash).Delete(&model.DeviceDataEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return engine.Errorf(engine.KindNotFound,
				"no data with hash %s for device %d", hash, id)
		}
		return rec.Append(tx, events.TopicDeviceDataRemoved, id, caller, "", map[string]any{
			"hash": hash,
		})
	})
}

// RemoveDevice deletes the device, its data log and its sender
// allow-list. Owner or device manager.
func (s *Service) RemoveDevice(ctx context.Context, caller string, id int64) error {
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if err := requireOwnerOrManager(tx, caller, dev.Owner, id); err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", id).Delete(&model.DeviceDataEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", id).Delete(&model.DeviceSender{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Device{}, id).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicDeviceRemoved, id, caller, "", nil)
	})
}

// TransferOwnership moves the device to a new owner. Current owner
// only.
func (s *Service) TransferOwnership(ctx context.Context, caller string, id int64, to string) error {
	if to == "" {
		return engine.Errorf(engine.KindInvariant, "transfer to empty address")
	}
	return s.eng.Exec(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var dev model.Device
		if err := loadDevice(tx, id, &dev); err != nil {
			return err
		}
		if caller != dev.Owner {
			return engine.Errorf(engine.KindUnauthorized,
				"caller %s is not the owner of device %d", caller, id)
		}
		dev.Owner = to
		dev.UpdatedAt = s.eng.Now()
		if err := tx.Save(&dev).Error; err != nil {
			return err
		}
		return rec.Append(tx, events.TopicDeviceOwnershipTransfer, id, caller, to, nil)
	})
}

// Get returns one device.
func (s *Service) Get(ctx context.Context, id int64) (*model.Device, error) {
	var dev model.Device
	if err := loadDevice(s.eng.DB().WithContext(ctx), id, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

// DataEntries returns the device's data log in insertion order.
func (s *Service) DataEntries(ctx context.Context, id int64) ([]model.DeviceDataEntry, error) {
	var out []model.DeviceDataEntry
	err := s.eng.DB().WithContext(ctx).
		Where("device_id = ?", id).Order("id").Find(&out).Error
	return out, err
}

func requireOwnerOrManager(tx *gorm.DB, caller, owner string, id int64) error {
	if caller == owner {
		return nil
	}
	ok, err := engine.HasRole(tx, caller, model.RoleDeviceManager)
	if err != nil {
		return err
	}
	if !ok {
		return engine.Errorf(engine.KindUnauthorized,
			"caller %s is neither owner nor device manager for device %d", caller, id)
	}
	return nil
}

func loadDevice(tx *gorm.DB, id int64, dev *model.Device) error {
	err := tx.First(dev, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errorf(engine.KindNotFound, "device %d not found", id)
	}
	return err
}
