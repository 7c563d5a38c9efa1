package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"depin-engine-backend/config"
	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/model"
)

func TestSeedGrantsConfiguredRoles(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	cfg := &config.Config{
		Engine: config.EngineConfig{
			Admins:               []string{"0xadmin"},
			ResourceManagers:     []string{"0xmanager"},
			MaintenanceApprovers: []string{"0xapprover"},
			DeviceManagers:       []string{"0xdevmgr"},
		},
		Oracle: config.OracleConfig{
			Quorum:                1,
			UpdateIntervalSeconds: 60,
			CanonicalDecimals:     2,
		},
	}
	require.NoError(t, Seed(gdb, cfg))

	// Every configured capability ends up granted, not just admin.
	for addr, role := range map[string]string{
		"0xadmin":    model.RoleAdmin,
		"0xmanager":  model.RoleResourceManager,
		"0xapprover": model.RoleMaintenanceApprover,
		"0xdevmgr":   model.RoleDeviceManager,
	} {
		ok, err := engine.HasRole(gdb, addr, role)
		require.NoError(t, err)
		assert.True(t, ok, "%s should hold %s", addr, role)
	}

	ok, err := engine.HasRole(gdb, "0xmanager", model.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok, "seeding must not widen grants across roles")

	// Re-seeding on restart changes nothing.
	require.NoError(t, Seed(gdb, cfg))
	var grants int64
	require.NoError(t, gdb.Model(&model.RoleGrant{}).Count(&grants).Error)
	assert.Equal(t, int64(4), grants)
}
