package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createAssetRequest struct {
	Name        string `json:"name" binding:"required"`
	MetadataURI string `json:"metadata_uri"`
}

// PostAsset registers an asset owned by the caller.
func (h *Handler) PostAsset(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	asset, err := h.svc.Assets.Create(c.Request.Context(), addr, req.Name, req.MetadataURI)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, asset)
}

type assetTransferRequest struct {
	To string `json:"to" binding:"required"`
}

// PostAssetTransfer moves an asset to a new owner.
func (h *Handler) PostAssetTransfer(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assetTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Assets.Transfer(c.Request.Context(), addr, id, req.To); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assetApproveRequest struct {
	To string `json:"to"`
}

// PostAssetApprove delegates transfer rights; an empty address clears
// them.
func (h *Handler) PostAssetApprove(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assetApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Assets.Approve(c.Request.Context(), addr, id, req.To); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostAssetFreeze blocks transfers of an asset.
func (h *Handler) PostAssetFreeze(c *gin.Context) {
	h.setAssetFrozen(c, true)
}

// PostAssetUnfreeze lifts a freeze.
func (h *Handler) PostAssetUnfreeze(c *gin.Context) {
	h.setAssetFrozen(c, false)
}

func (h *Handler) setAssetFrozen(c *gin.Context, frozen bool) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var err error
	if frozen {
		err = h.svc.Assets.Freeze(c.Request.Context(), addr, id)
	} else {
		err = h.svc.Assets.Unfreeze(c.Request.Context(), addr, id)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAsset destroys an asset and its maintenance history.
func (h *Handler) DeleteAsset(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Assets.Destroy(c.Request.Context(), addr, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAsset returns one asset.
func (h *Handler) GetAsset(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	asset, err := h.svc.Assets.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

// GetAssets lists assets by owner.
func (h *Handler) GetAssets(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}
	out, err := h.svc.Assets.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
