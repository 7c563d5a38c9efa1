package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type maintenanceRequestRequest struct {
	Description string `json:"description" binding:"required"`
}

// PostMaintenanceRequest opens a maintenance request for an asset.
func (h *Handler) PostMaintenanceRequest(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	assetID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req maintenanceRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.svc.Maintenance.Request(c.Request.Context(), addr, assetID, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

type maintenanceApproveRequest struct {
	Cost            int64  `json:"cost"`
	ServiceProvider string `json:"service_provider" binding:"required"`
}

// PostMaintenanceApprove accepts a pending request, fixing cost and
// provider.
func (h *Handler) PostMaintenanceApprove(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req maintenanceApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Maintenance.Approve(c.Request.Context(), addr, id, req.Cost, req.ServiceProvider); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostMaintenanceStart moves an approved request into progress.
func (h *Handler) PostMaintenanceStart(c *gin.Context) {
	h.maintenanceTransition(c, h.svc.Maintenance.Start)
}

// PostMaintenanceComplete finishes work and pays the provider.
func (h *Handler) PostMaintenanceComplete(c *gin.Context) {
	h.maintenanceTransition(c, h.svc.Maintenance.Complete)
}

// PostMaintenanceCancel withdraws a request before work starts.
func (h *Handler) PostMaintenanceCancel(c *gin.Context) {
	h.maintenanceTransition(c, h.svc.Maintenance.Cancel)
}

// PostMaintenanceReject declines a pending request.
func (h *Handler) PostMaintenanceReject(c *gin.Context) {
	h.maintenanceTransition(c, h.svc.Maintenance.Reject)
}

func (h *Handler) maintenanceTransition(c *gin.Context, fn func(ctx context.Context, caller string, id int64) error) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), addr, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type maintenanceFundsRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// PostMaintenanceFunds deposits tokens into the maintenance escrow.
func (h *Handler) PostMaintenanceFunds(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req maintenanceFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Maintenance.DepositFunds(c.Request.Context(), addr, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMaintenanceRequest returns one maintenance request.
func (h *Handler) GetMaintenanceRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.Maintenance.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetAssetMaintenance lists an asset's non-terminal requests.
func (h *Handler) GetAssetMaintenance(c *gin.Context) {
	assetID, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.Maintenance.ActiveRequests(c.Request.Context(), assetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
