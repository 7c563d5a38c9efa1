package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"depin-engine-backend/internal/allocation"
)

type addResourceRequest struct {
	Name         string `json:"name" binding:"required"`
	TotalSupply  int64  `json:"total_supply" binding:"required"`
	PricePerUnit int64  `json:"price_per_unit"`
	TokenAddress string `json:"token_address"`
}

// PostResource creates a resource pool.
func (h *Handler) PostResource(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req addResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Allocation.AddResource(c.Request.Context(), allocation.AddResourceInput{
		Caller:       addr,
		Name:         req.Name,
		TotalSupply:  req.TotalSupply,
		PricePerUnit: req.PricePerUnit,
		TokenAddress: req.TokenAddress,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type updateResourceRequest struct {
	TotalSupply  int64 `json:"total_supply" binding:"required"`
	PricePerUnit int64 `json:"price_per_unit"`
}

// PatchResource updates a resource's supply and price.
func (h *Handler) PatchResource(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Allocation.UpdateResource(c.Request.Context(), addr, id, req.TotalSupply, req.PricePerUnit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PostResourceDeactivate retires a resource pool.
func (h *Handler) PostResourceDeactivate(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Allocation.DeactivateResource(c.Request.Context(), addr, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetResources lists all resource pools.
func (h *Handler) GetResources(c *gin.Context) {
	out, err := h.svc.Allocation.ListResources(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetResource returns one resource pool.
func (h *Handler) GetResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Allocation.GetResource(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type allocationRequestRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// PostAllocationRequest opens an allocation request against a resource.
func (h *Handler) PostAllocationRequest(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req allocationRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.svc.Allocation.RequestAllocation(c.Request.Context(), addr, id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// GetAllocationRequests lists a resource's allocation requests.
func (h *Handler) GetAllocationRequests(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.Allocation.ListRequests(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// PostFulfillRequest settles an allocation request, moving supply and
// payment.
func (h *Handler) PostFulfillRequest(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Allocation.FulfillRequest(c.Request.Context(), addr, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type revokeRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// PostRevokeAllocation returns part of the caller's allocation for a
// refund.
func (h *Handler) PostRevokeAllocation(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Allocation.Revoke(c.Request.Context(), addr, id, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bonusRequest struct {
	Holder string `json:"holder" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

// PostGrantBonus allocates supply to a holder without payment.
func (h *Handler) PostGrantBonus(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req bonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Allocation.GrantBonus(c.Request.Context(), addr, req.Holder, id, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type withdrawRequest struct {
	To     string `json:"to" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

// PostWithdrawFunds pays collected allocation funds out of escrow.
func (h *Handler) PostWithdrawFunds(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Allocation.WithdrawFunds(c.Request.Context(), addr, req.To, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetHolderAllocations lists a holder's allocations across resources.
func (h *Handler) GetHolderAllocations(c *gin.Context) {
	holder := c.Param("address")
	out, err := h.svc.Allocation.HolderAllocations(c.Request.Context(), holder)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// pathID parses a numeric path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
