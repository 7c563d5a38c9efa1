package api

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"depin-engine-backend/internal/allocation"
	"depin-engine-backend/internal/assets"
	"depin-engine-backend/internal/devices"
	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/feed"
	"depin-engine-backend/internal/maintenance"
	"depin-engine-backend/internal/oracle"
	"depin-engine-backend/internal/token"
)

// Services bundles the domain services the API exposes.
type Services struct {
	Engine      *engine.Engine
	Token       token.Ledger
	Allocation  *allocation.Service
	Assets      *assets.Service
	Maintenance *maintenance.Service
	Devices     *devices.Service
	Oracle      *oracle.Service
	Integration *oracle.Integration
	Sources     []feed.Source
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     Services
	db      *gorm.DB
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, db *gorm.DB, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		svc:     svc,
		db:      db,
		webpush: webpushOptions,
	}
}

// caller extracts the acting address from the X-Caller header. Every
// mutating endpoint requires it.
func caller(c *gin.Context) (string, bool) {
	addr := c.GetHeader("X-Caller")
	if addr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Caller header is required"})
		return "", false
	}
	return addr, true
}

// respondError translates engine error kinds to HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindUnauthorized:
		status = http.StatusForbidden
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindWrongState:
		status = http.StatusConflict
	case engine.KindInvariant:
		status = http.StatusUnprocessableEntity
	case engine.KindExternalCall:
		status = http.StatusBadGateway
	case engine.KindReentrant:
		status = http.StatusLocked
	case engine.KindTooEarly:
		status = http.StatusTooEarly
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
