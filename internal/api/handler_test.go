package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"depin-engine-backend/config"
	"depin-engine-backend/internal/allocation"
	"depin-engine-backend/internal/assets"
	"depin-engine-backend/internal/devices"
	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/maintenance"
	"depin-engine-backend/internal/model"
	"depin-engine-backend/internal/oracle"
	"depin-engine-backend/internal/token"
)

func setupRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, gormDB.AutoMigrate(
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
	))
	require.NoError(t, engine.GrantRole(gormDB, "0xadmin", model.RoleAdmin))
	require.NoError(t, engine.GrantRole(gormDB, "0xadmin", model.RoleResourceManager))
	require.NoError(t, engine.GrantRole(gormDB, "0xdevmgr", model.RoleDeviceManager))
	require.NoError(t, oracle.EnsureSetState(gormDB, 1))
	require.NoError(t, oracle.EnsureIntegrationState(gormDB, 60, 50, 2))

	eng := engine.New(gormDB)
	var tok token.Ledger
	svc := Services{
		Engine:      eng,
		Token:       tok,
		Allocation:  allocation.NewService(eng, tok),
		Assets:      assets.NewService(eng),
		Maintenance: maintenance.NewService(eng, tok),
		Devices:     devices.NewService(eng),
		Oracle:      oracle.NewService(eng),
		Integration: oracle.NewIntegration(eng),
	}

	handler := NewHandler(svc, gormDB, nil)
	return NewRouter(handler, &config.ServerConfig{
		RateLimitPerSec: 1000000,
		CacheTTLSeconds: 1,
	})
}

func do(router *gin.Engine, method, path, callerAddr string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if callerAddr != "" {
		req.Header.Set("X-Caller", callerAddr)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestResourceEndpoints(t *testing.T) {
	router := setupRouter(t)

	body := map[string]any{
		"name":           "bandwidth",
		"total_supply":   100,
		"price_per_unit": 2,
		"token_address":  "0xtoken",
	}

	// Mutations demand a caller identity.
	w := do(router, http.MethodPost, "/api/resources", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Non-admin callers are rejected.
	w = do(router, http.MethodPost, "/api/resources", "0xsomeone", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPost, "/api/resources", "0xadmin", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.Resource
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, int64(100), created.AvailableSupply)

	w = do(router, http.MethodGet, fmt.Sprintf("/api/resources/%d", created.ID), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/resources/999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deactivating twice maps the state conflict to 409.
	w = do(router, http.MethodPost, fmt.Sprintf("/api/resources/%d/deactivate", created.ID), "0xadmin", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(router, http.MethodPost, fmt.Sprintf("/api/resources/%d/deactivate", created.ID), "0xadmin", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAllocationFlowOverHTTP(t *testing.T) {
	router := setupRouter(t)

	w := do(router, http.MethodPost, "/api/resources", "0xadmin", map[string]any{
		"name":           "storage",
		"total_supply":   100,
		"price_per_unit": 2,
		"token_address":  "0xtoken",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var res model.Resource
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))

	// Fund the requester and authorize the escrow pull.
	w = do(router, http.MethodPost, "/api/token/mint", "0xadmin", map[string]any{
		"to": "0xalice", "amount": 200,
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(router, http.MethodPost, "/api/token/approve", "0xalice", map[string]any{
		"spender": token.AllocationEscrow, "amount": 200,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodPost, fmt.Sprintf("/api/resources/%d/requests", res.ID), "0xalice", map[string]any{
		"amount": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var req model.AllocationRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))

	w = do(router, http.MethodPost, fmt.Sprintf("/api/requests/%d/fulfill", req.ID), "0xadmin", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodGet, "/api/token/balance/0xalice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"address":"0xalice","balance":80}`, w.Body.String())

	w = do(router, http.MethodGet, "/api/holders/0xalice/allocations", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var allocs []model.Allocation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &allocs))
	require.Len(t, allocs, 1)
	assert.Equal(t, int64(60), allocs[0].Amount)
}

func TestErrorMapping(t *testing.T) {
	router := setupRouter(t)

	// Invariant violations map to 422.
	w := do(router, http.MethodPost, "/api/oracles/quorum", "0xadmin", map[string]any{
		"quorum": 5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Unknown entities map to 404.
	w = do(router, http.MethodPost, "/api/maintenance/42/approve", "0xadmin", map[string]any{
		"cost": 1, "service_provider": "0xp",
	})
	assert.Equal(t, http.StatusForbidden, w.Code, "missing approver role wins over missing entity")

	w = do(router, http.MethodGet, "/api/maintenance/42", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Insufficient funds surface as a failed external call, 502.
	w = do(router, http.MethodPost, "/api/funds/withdraw", "0xadmin", map[string]any{
		"to": "0xadmin", "amount": 10,
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOracleEndpoints(t *testing.T) {
	router := setupRouter(t)

	w := do(router, http.MethodPost, "/api/oracles", "0xadmin", map[string]any{
		"address": "0xo1", "payload_kind": "numeric",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Reports without a caller identity are rejected outright.
	w = do(router, http.MethodPost, "/api/oracles/0xo1/report", "", map[string]any{
		"value": 102,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/oracles/0xo1/report", "0xo1", map[string]any{
		"value": 102,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodGet, "/api/oracles/aggregate", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":102}`, w.Body.String())

	// Reports from unregistered addresses are forbidden.
	w = do(router, http.MethodPost, "/api/oracles/0xghost/report", "0xghost", map[string]any{
		"value": 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// So is writing another oracle's report.
	w = do(router, http.MethodPost, "/api/oracles/0xo1/report", "0xintruder", map[string]any{
		"value": 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodGet, "/api/oracles/aggregate", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":102}`, w.Body.String(), "spoof attempts must not move the aggregate")

	// With no feed sources configured an on-demand update cycle fails
	// as an external-call error.
	w = do(router, http.MethodPost, "/api/oracles/update", "0xadmin", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDeviceEndpoints(t *testing.T) {
	router := setupRouter(t)

	// Registration needs the device manager role.
	w := do(router, http.MethodPost, "/api/devices", "0xadmin", map[string]any{
		"address": "dev:1", "device_type": "meter",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPost, "/api/devices", "0xdevmgr", map[string]any{
		"address": "dev:1", "device_type": "meter",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var dev model.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dev))

	w = do(router, http.MethodPost, fmt.Sprintf("/api/devices/%d/data", dev.ID), "0xdevmgr", map[string]any{
		"hash": "h1", "payload": `{"reading":23.5}`,
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Duplicate hash is a state conflict.
	w = do(router, http.MethodPost, fmt.Sprintf("/api/devices/%d/data", dev.ID), "0xdevmgr", map[string]any{
		"hash": "h1", "payload": `{"reading":24.0}`,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodGet, fmt.Sprintf("/api/devices/%d/data", dev.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []model.DeviceDataEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}
