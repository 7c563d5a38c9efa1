package assets

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/model"
)

const (
	admin = "0xadmin"
	userA = "0xaaa"
	userB = "0xbbb"
	userC = "0xccc"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.RoleGrant{},
		&model.Asset{},
		&model.MaintenanceRequest{},
		&model.Event{},
		&model.EventTopic{},
	))
	require.NoError(t, engine.GrantRole(db, admin, model.RoleAdmin))

	return NewService(engine.New(db)), db
}

func TestApprovedTransferClearsApproval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	asset, err := svc.Create(ctx, userA, "solar-panel-7", "ipfs://meta/7")
	require.NoError(t, err)
	assert.Equal(t, userA, asset.Owner)

	// Only the owner may approve.
	err = svc.Approve(ctx, userB, asset.ID, userB)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	// Approving the current owner is meaningless.
	err = svc.Approve(ctx, userA, asset.ID, userA)
	assert.Equal(t, engine.KindInvariant, engine.KindOf(err))

	require.NoError(t, svc.Approve(ctx, userA, asset.ID, userB))

	// The approved party moves the asset to a third owner.
	require.NoError(t, svc.Transfer(ctx, userB, asset.ID, userC))

	got, err := svc.Get(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, userC, got.Owner)
	assert.Empty(t, got.Approved, "transfer must clear the approval")

	// The old approval does not survive the transfer.
	err = svc.Transfer(ctx, userB, asset.ID, userB)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))
}

func TestFrozenAssetRejectsTransfer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	asset, err := svc.Create(ctx, userA, "turbine-3", "")
	require.NoError(t, err)

	require.NoError(t, svc.Freeze(ctx, userA, asset.ID))

	// Freezing twice is a rejected no-op.
	err = svc.Freeze(ctx, userA, asset.ID)
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err))

	err = svc.Transfer(ctx, userA, asset.ID, userB)
	assert.Equal(t, engine.KindWrongState, engine.KindOf(err))

	// Admin may unfreeze an asset they do not own.
	require.NoError(t, svc.Unfreeze(ctx, admin, asset.ID))
	require.NoError(t, svc.Transfer(ctx, userA, asset.ID, userB))

	// Unrelated callers cannot freeze.
	err = svc.Freeze(ctx, userC, asset.ID)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))
}

func TestTransferValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	asset, err := svc.Create(ctx, userA, "sensor-1", "")
	require.NoError(t, err)

	err = svc.Transfer(ctx, userA, asset.ID, "")
	assert.Equal(t, engine.KindInvariant, engine.KindOf(err))

	err = svc.Transfer(ctx, userB, asset.ID, userC)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	err = svc.Transfer(ctx, userA, 999, userB)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}

func TestDestroyCascadesMaintenanceHistory(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	asset, err := svc.Create(ctx, userA, "battery-2", "")
	require.NoError(t, err)

	require.NoError(t, db.Create(&model.MaintenanceRequest{
		AssetID:     asset.ID,
		Description: "cell replacement",
		Requester:   userA,
		Status:      model.MaintenancePending,
	}).Error)

	// Only owner or admin may destroy.
	err = svc.Destroy(ctx, userB, asset.ID)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	require.NoError(t, svc.Destroy(ctx, userA, asset.ID))

	_, err = svc.Get(ctx, asset.ID)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

	var count int64
	db.Model(&model.MaintenanceRequest{}).Where("asset_id = ?", asset.ID).Count(&count)
	assert.Zero(t, count, "maintenance history goes with the asset")
}

func TestListByOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, userA, "panel-1", "")
	require.NoError(t, err)
	second, err := svc.Create(ctx, userA, "panel-2", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, userB, "panel-3", "")
	require.NoError(t, err)

	out, err := svc.ListByOwner(ctx, userA)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, first.ID, out[0].ID)
	assert.Equal(t, second.ID, out[1].ID)
}
