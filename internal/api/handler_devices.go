package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerDeviceRequest struct {
	Address     string `json:"address" binding:"required"`
	DeviceType  string `json:"device_type" binding:"required"`
	MetadataURI string `json:"metadata_uri"`
}

// PostDevice registers an IoT device under the caller.
func (h *Handler) PostDevice(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dev, err := h.svc.Devices.Register(c.Request.Context(), addr, req.Address, req.DeviceType, req.MetadataURI)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dev)
}

// PostDeviceActivate switches a device on.
func (h *Handler) PostDeviceActivate(c *gin.Context) {
	h.deviceTransition(c, h.svc.Devices.Activate)
}

// PostDeviceDeactivate switches a device off.
func (h *Handler) PostDeviceDeactivate(c *gin.Context) {
	h.deviceTransition(c, h.svc.Devices.Deactivate)
}

func (h *Handler) deviceTransition(c *gin.Context, fn func(ctx context.Context, caller string, id int64) error) {
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

type senderRequest struct {
	Address string `json:"address" binding:"required"`
}

// PostDeviceSender allow-lists an address to submit data for a device.
func (h *Handler) PostDeviceSender(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req senderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Devices.AuthorizeSender(c.Request.Context(), addr, id, req.Address); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteDeviceSender removes an address from a device's allow-list.
func (h *Handler) DeleteDeviceSender(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Devices.RevokeSender(c.Request.Context(), addr, id, c.Param("address")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type storeDataRequest struct {
	Hash    string `json:"hash" binding:"required"`
	Payload string `json:"payload" binding:"required"`
}

// PostDeviceData stores a data entry for an active device.
func (h *Handler) PostDeviceData(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req storeDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Devices.StoreData(c.Request.Context(), addr, id, req.Hash, []byte(req.Payload)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteDeviceData removes one stored entry by hash.
func (h *Handler) DeleteDeviceData(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Devices.RemoveData(c.Request.Context(), addr, id, c.Param("hash")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteDevice removes a device and its stored data.
func (h *Handler) DeleteDevice(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Devices.RemoveDevice(c.Request.Context(), addr, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type deviceTransferRequest struct {
	To string `json:"to" binding:"required"`
}

// PostDeviceTransfer hands a device to a new owner.
func (h *Handler) PostDeviceTransfer(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req deviceTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Devices.TransferOwnership(c.Request.Context(), addr, id, req.To); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDevice returns one device.
func (h *Handler) GetDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	dev, err := h.svc.Devices.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dev)
}

// GetDeviceData lists a device's stored entries.
func (h *Handler) GetDeviceData(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.Devices.DataEntries(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
