package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
)

type mintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

// PostTokenMint credits freshly minted tokens to an account. Admin
// only.
func (h *Handler) PostTokenMint(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.svc.Engine.Exec(c.Request.Context(), func(tx *gorm.DB, rec *events.Recorder) error {
		if err := engine.RequireAdmin(tx, addr); err != nil {
			return err
		}
		if req.Amount <= 0 {
			return engine.Errorf(engine.KindInvariant, "mint amount must be positive")
		}
		if err := h.svc.Token.Mint(tx, req.To, req.Amount); err != nil {
			return err
		}
		return rec.Append(tx, events.TopicTokenMinted, 0, addr, req.To, map[string]any{
			"amount": req.Amount,
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type approveRequest struct {
	Spender string `json:"spender" binding:"required"`
	Amount  int64  `json:"amount"`
}

// PostTokenApprove sets the caller's allowance for a spender.
func (h *Handler) PostTokenApprove(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.svc.Engine.Exec(c.Request.Context(), func(tx *gorm.DB, rec *events.Recorder) error {
		if req.Amount < 0 {
			return engine.Errorf(engine.KindInvariant, "allowance must not be negative")
		}
		if err := h.svc.Token.Approve(tx, addr, req.Spender, req.Amount); err != nil {
			return err
		}
		return rec.Append(tx, events.TopicTokenApproved, 0, addr, req.Spender, map[string]any{
			"amount": req.Amount,
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTokenBalance returns an account's balance.
func (h *Handler) GetTokenBalance(c *gin.Context) {
	balance, err := h.svc.Token.BalanceOf(h.db.WithContext(c.Request.Context()), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "balance": balance})
}

// GetTokenAllowance returns the allowance an owner granted a spender.
func (h *Handler) GetTokenAllowance(c *gin.Context) {
	owner := c.Query("owner")
	spender := c.Query("spender")
	if owner == "" || spender == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner and spender are required"})
		return
	}
	amount, err := h.svc.Token.Allowance(h.db.WithContext(c.Request.Context()), owner, spender)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "spender": spender, "allowance": amount})
}
