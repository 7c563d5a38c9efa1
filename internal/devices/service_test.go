package devices

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/model"
)

const (
	manager  = "0xmanager"
	sender   = "0xsender"
	stranger = "0xstranger"
	newOwner = "0xnewowner"
)

func newTestService(t *testing.T) *Service {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.RoleGrant{},
		&model.Device{},
		&model.DeviceDataEntry{},
		&model.DeviceSender{},
		&model.Event{},
		&model.EventTopic{},
	))
	require.NoError(t, engine.GrantRole(db, manager, model.RoleDeviceManager))

	return NewService(engine.New(db))
}

func registerDevice(t *testing.T, svc *Service) *model.Device {
	dev, err := svc.Register(context.Background(), manager, "dev:0001", "temperature", "ipfs://dev/1")
	require.NoError(t, err)
	return dev
}

func TestRegisterRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	dev := registerDevice(t, svc)
	assert.True(t, dev.Active, "devices start active")
	assert.Equal(t, manager, dev.Owner)

	_, err := svc.Register(ctx, manager, "dev:0001", "temperature", "")
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err), "duplicate address")

	_, err = svc.Register(ctx, stranger, "dev:0002", "temperature", "")
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))
}

func TestActivationToggles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	err := svc.Activate(ctx, manager, dev.ID)
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err), "already active")

	require.NoError(t, svc.Deactivate(ctx, manager, dev.ID))
	err = svc.Deactivate(ctx, manager, dev.ID)
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err), "already inactive")

	// Inactive devices accept no data.
	err = svc.StoreData(ctx, manager, dev.ID, "h1", []byte("{}"))
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err))

	require.NoError(t, svc.Activate(ctx, manager, dev.ID))

	err = svc.Activate(ctx, stranger, dev.ID)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))
}

func TestStoreDataAuthorization(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	err := svc.StoreData(ctx, sender, dev.ID, "h1", []byte("23.5"))
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	require.NoError(t, svc.AuthorizeSender(ctx, manager, dev.ID, sender))

	// Duplicate authorization is rejected.
	err = svc.AuthorizeSender(ctx, manager, dev.ID, sender)
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err))

	require.NoError(t, svc.StoreData(ctx, sender, dev.ID, "h1", []byte("23.5")))

	got, err := svc.Get(ctx, dev.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastDataAt)

	require.NoError(t, svc.RevokeSender(ctx, manager, dev.ID, sender))
	err = svc.StoreData(ctx, sender, dev.ID, "h2", []byte("24.0"))
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	err = svc.RevokeSender(ctx, manager, dev.ID, sender)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}

func TestStoreDataBounds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	svc.MaxDataEntries = 2
	svc.MaxDataSize = 16

	err := svc.StoreData(ctx, manager, dev.ID, "big", []byte(strings.Repeat("x", 17)))
	assert.Equal(t, engine.KindInvariant, engine.KindOf(err))

	require.NoError(t, svc.StoreData(ctx, manager, dev.ID, "h1", []byte("a")))

	// Same hash is rejected.
	err = svc.StoreData(ctx, manager, dev.ID, "h1", []byte("b"))
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err))

	require.NoError(t, svc.StoreData(ctx, manager, dev.ID, "h2", []byte("b")))

	err = svc.StoreData(ctx, manager, dev.ID, "h3", []byte("c"))
	assert.Equal(t, engine.KindInvariant, engine.KindOf(err), "log is full")

	// Removing an entry frees a slot.
	require.NoError(t, svc.RemoveData(ctx, manager, dev.ID, "h1"))
	require.NoError(t, svc.StoreData(ctx, manager, dev.ID, "h3", []byte("c")))

	entries, err := svc.DataEntries(ctx, dev.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "h2", entries[0].Hash)
	assert.Equal(t, "h3", entries[1].Hash)
}

func TestTransferOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	err := svc.TransferOwnership(ctx, stranger, dev.ID, stranger)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	require.NoError(t, svc.TransferOwnership(ctx, manager, dev.ID, newOwner))

	got, err := svc.Get(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, newOwner, got.Owner)

	// The new owner manages the allow-list now.
	require.NoError(t, svc.AuthorizeSender(ctx, newOwner, dev.ID, sender))
	err = svc.AuthorizeSender(ctx, manager, dev.ID, stranger)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err), "manager role does not grant allow-list control")
}

func TestRemoveDeviceCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	require.NoError(t, svc.AuthorizeSender(ctx, manager, dev.ID, sender))
	require.NoError(t, svc.StoreData(ctx, sender, dev.ID, "h1", []byte("1")))

	err := svc.RemoveDevice(ctx, stranger, dev.ID)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	require.NoError(t, svc.RemoveDevice(ctx, manager, dev.ID))

	_, err = svc.Get(ctx, dev.ID)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

	var entries, senders int64
	db := svc.eng.DB()
	db.Model(&model.DeviceDataEntry{}).Where("device_id = ?", dev.ID).Count(&entries)
	db.Model(&model.DeviceSender{}).Where("device_id = ?", dev.ID).Count(&senders)
	assert.Zero(t, entries)
	assert.Zero(t, senders)
}
