package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"depin-engine-backend/config"
	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/model"
	"depin-engine-backend/internal/oracle"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(gdb); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	log.Println("Database initialization complete.")
	return gdb, nil
}

// Migrate creates or updates the schema for every persisted type. Test
// setups call this directly against sqlite.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.RoleGrant{},
		&model.TokenAccount{},
		&model.TokenAllowance{},
		&model.Resource{},
		&model.AllocationRequest{},
		&model.Allocation{},
		&model.Asset{},
		&model.MaintenanceRequest{},
		&model.Device{},
		&model.DeviceDataEntry{},
		&model.DeviceSender{},
		&model.Oracle{},
		&model.OracleSetState{},
		&model.OracleIntegrationState{},
		&model.Event{},
		&model.EventTopic{},
		&model.PushSubscription{},
	)
}

// Seed applies the bootstrap state from config: role grants and the
// oracle singleton rows. Idempotent across restarts.
func Seed(gdb *gorm.DB, cfg *config.Config) error {
	grants := []struct {
		role  string
		addrs []string
	}{
		{model.RoleAdmin, cfg.Engine.Admins},
		{model.RoleResourceManager, cfg.Engine.ResourceManagers},
		{model.RoleMaintenanceApprover, cfg.Engine.MaintenanceApprovers},
		{model.RoleDeviceManager, cfg.Engine.DeviceManagers},
	}
	for _, g := range grants {
		for _, addr := range g.addrs {
			if err := engine.GrantRole(gdb, addr, g.role); err != nil {
				return fmt.Errorf("failed to grant %s role to %s: %w", g.role, addr, err)
			}
		}
	}
	if err := oracle.EnsureSetState(gdb, cfg.Oracle.Quorum); err != nil {
		return fmt.Errorf("failed to seed oracle set state: %w", err)
	}
	if err := oracle.EnsureIntegrationState(gdb,
		cfg.Oracle.UpdateIntervalSeconds, cfg.Oracle.Tolerance, cfg.Oracle.CanonicalDecimals); err != nil {
		return fmt.Errorf("failed to seed oracle integration state: %w", err)
	}
	return nil
}
