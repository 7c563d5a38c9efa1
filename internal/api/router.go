package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"depin-engine-backend/config"
	"depin-engine-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	// Initialize middleware
	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 10
	}
	rateLimiter := mw.RateLimiter(rate.Limit(limit), 5)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	cacheStore := cache.New(ttl, 10*time.Minute)
	caching := mw.Cache(cacheStore, ttl)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Resource allocation
		api.POST("/resources", handler.PostResource)
		api.GET("/resources", caching, handler.GetResources)
		api.GET("/resources/:id", caching, handler.GetResource)
		api.PATCH("/resources/:id", handler.PatchResource)
		api.POST("/resources/:id/deactivate", handler.PostResourceDeactivate)
		api.POST("/resources/:id/requests", handler.PostAllocationRequest)
		api.GET("/resources/:id/requests", handler.GetAllocationRequests)
		api.POST("/resources/:id/revoke", handler.PostRevokeAllocation)
		api.POST("/resources/:id/bonus", handler.PostGrantBonus)
		api.POST("/requests/:id/fulfill", handler.PostFulfillRequest)
		api.POST("/funds/withdraw", handler.PostWithdrawFunds)
		api.GET("/holders/:address/allocations", handler.GetHolderAllocations)

		// Assets and maintenance
		api.POST("/assets", handler.PostAsset)
		api.GET("/assets", caching, handler.GetAssets)
		api.GET("/assets/:id", handler.GetAsset)
		api.POST("/assets/:id/transfer", handler.PostAssetTransfer)
		api.POST("/assets/:id/approve", handler.PostAssetApprove)
		api.POST("/assets/:id/freeze", handler.PostAssetFreeze)
		api.POST("/assets/:id/unfreeze", handler.PostAssetUnfreeze)
		api.DELETE("/assets/:id", handler.DeleteAsset)
		api.POST("/assets/:id/maintenance", handler.PostMaintenanceRequest)
		api.GET("/assets/:id/maintenance", handler.GetAssetMaintenance)
		api.POST("/maintenance/funds", handler.PostMaintenanceFunds)
		api.GET("/maintenance/:id", handler.GetMaintenanceRequest)
		api.POST("/maintenance/:id/approve", handler.PostMaintenanceApprove)
		api.POST("/maintenance/:id/start", handler.PostMaintenanceStart)
		api.POST("/maintenance/:id/complete", handler.PostMaintenanceComplete)
		api.POST("/maintenance/:id/cancel", handler.PostMaintenanceCancel)
		api.POST("/maintenance/:id/reject", handler.PostMaintenanceReject)

		// Devices
		api.POST("/devices", handler.PostDevice)
		api.GET("/devices/:id", handler.GetDevice)
		api.POST("/devices/:id/activate", handler.PostDeviceActivate)
		api.POST("/devices/:id/deactivate", handler.PostDeviceDeactivate)
		api.POST("/devices/:id/transfer", handler.PostDeviceTransfer)
		api.POST("/devices/:id/senders", handler.PostDeviceSender)
		api.DELETE("/devices/:id/senders/:address", handler.DeleteDeviceSender)
		api.POST("/devices/:id/data", handler.PostDeviceData)
		api.GET("/devices/:id/data", handler.GetDeviceData)
		api.DELETE("/devices/:id/data/:hash", handler.DeleteDeviceData)
		api.DELETE("/devices/:id", handler.DeleteDevice)

		// Oracles
		api.POST("/oracles", handler.PostOracle)
		api.GET("/oracles", handler.GetOracles)
		api.POST("/oracles/quorum", handler.PostOracleQuorum)
		api.GET("/oracles/aggregate", handler.GetOracleAggregate)
		api.POST("/oracles/verify", handler.PostOracleVerify)
		api.GET("/oracles/state", caching, handler.GetOracleState)
		api.POST("/oracles/update", handler.PostOracleUpdate)
		api.POST("/oracles/:address/deactivate", handler.PostOracleDeactivate)
		api.POST("/oracles/:address/report", handler.PostOracleReport)
		api.DELETE("/oracles/:address", handler.DeleteOracle)

		// Token ledger
		api.POST("/token/mint", handler.PostTokenMint)
		api.POST("/token/approve", handler.PostTokenApprove)
		api.GET("/token/balance/:address", handler.GetTokenBalance)
		api.GET("/token/allowance", handler.GetTokenAllowance)

		// Push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
