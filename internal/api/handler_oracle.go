package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerOracleRequest struct {
	Address     string `json:"address" binding:"required"`
	PayloadKind string `json:"payload_kind" binding:"required"`
}

// PostOracle registers an oracle.
func (h *Handler) PostOracle(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req registerOracleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, err := h.svc.Oracle.Register(c.Request.Context(), addr, req.Address, req.PayloadKind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// PostOracleDeactivate switches an oracle off permanently.
func (h *Handler) PostOracleDeactivate(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	if err := h.svc.Oracle.Deactivate(c.Request.Context(), addr, c.Param("address")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteOracle removes an oracle from the set.
func (h *Handler) DeleteOracle(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	if err := h.svc.Oracle.Remove(c.Request.Context(), addr, c.Param("address")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type oracleReportRequest struct {
	Value *int64 `json:"value"`
	Raw   string `json:"raw"` // base64
}

// PostOracleReport records a report for an oracle. The caller must be
// the oracle itself, or an admin reporting on its behalf. Exactly one
// of value and raw must be set, matching the oracle's payload kind.
func (h *Handler) PostOracleReport(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req oracleReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	address := c.Param("address")

	var err error
	switch {
	case req.Value != nil && req.Raw == "":
		err = h.svc.Oracle.SubmitNumeric(c.Request.Context(), addr, address, *req.Value)
	case req.Value == nil && req.Raw != "":
		var data []byte
		data, err = base64.StdEncoding.DecodeString(req.Raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "raw must be base64"})
			return
		}
		err = h.svc.Oracle.SubmitRaw(c.Request.Context(), addr, address, data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of value and raw is required"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type quorumRequest struct {
	Quorum int `json:"quorum" binding:"required"`
}

// PostOracleQuorum changes the quorum.
func (h *Handler) PostOracleQuorum(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req quorumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Oracle.SetQuorum(c.Request.Context(), addr, req.Quorum); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetOracles lists the valid oracles in registration order.
func (h *Handler) GetOracles(c *gin.Context) {
	out, err := h.svc.Oracle.ValidOracles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetOracleAggregate returns the quorum-gated truncated mean.
func (h *Handler) GetOracleAggregate(c *gin.Context) {
	value, err := h.svc.Oracle.Aggregate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}

type verifyRequest struct {
	Data string `json:"data" binding:"required"` // base64
}

// PostOracleVerify checks a payload against the stored report hashes.
func (h *Handler) PostOracleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data must be base64"})
		return
	}

	verified, err := h.svc.Oracle.Verify(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

// PostOracleUpdate runs one feed-driven update cycle on demand, using
// the same sources the background poller polls.
func (h *Handler) PostOracleUpdate(c *gin.Context) {
	if _, ok := caller(c); !ok {
		return
	}
	accepted, value, err := h.svc.Integration.Update(c.Request.Context(), h.svc.Sources)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "value": value})
}

// GetOracleState returns the integration singleton.
func (h *Handler) GetOracleState(c *gin.Context) {
	st, err := h.svc.Integration.State(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
