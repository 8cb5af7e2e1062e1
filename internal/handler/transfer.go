package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scenariomarket/internal/auth"
	"scenariomarket/internal/transfer"
)

type TransferHandler struct {
	Engine *transfer.Engine
}

func (h *TransferHandler) Register(r *gin.Engine) {
	g := r.Group("/api/scenarios")
	g.POST("/:id/steal", h.steal)
	g.POST("/:id/shield", h.shield)
	g.POST("/:id/close", h.close)
	g.POST("/:id/resolve", h.resolve)
	g.POST("/:id/cancel", h.cancel)
}

func (h *TransferHandler) steal(c *gin.Context) {
	id, callerID, ok := h.idsOrAbort(c)
	if !ok {
		return
	}
	receipt, err := h.Engine.Steal(c.Request.Context(), id, callerID)
	if err != nil {
		transferError(c, err)
		return
	}
	Ok(c, receipt, nil)
}

type shieldRequest struct {
	DurationPreset string `json:"duration_preset" binding:"required"`
}

func (h *TransferHandler) shield(c *gin.Context) {
	id, callerID, ok := h.idsOrAbort(c)
	if !ok {
		return
	}
	var req shieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	receipt, err := h.Engine.PurchaseShield(c.Request.Context(), id, callerID, req.DurationPreset)
	if err != nil {
		transferError(c, err)
		return
	}
	Ok(c, receipt, nil)
}

func (h *TransferHandler) close(c *gin.Context) {
	id, _, ok := h.idsOrAbort(c)
	if !ok {
		return
	}
	if err := h.Engine.Close(c.Request.Context(), id); err != nil {
		transferError(c, err)
		return
	}
	Ok(c, gin.H{"scenario_id": id, "status": "closed"}, nil)
}

type resolveRequest struct {
	Outcome string                      `json:"outcome" binding:"required"`
	Winners []transfer.WinnerAllocation `json:"winners"`
}

func (h *TransferHandler) resolve(c *gin.Context) {
	id, _, ok := h.idsOrAbort(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	payouts, err := h.Engine.Resolve(c.Request.Context(), id, req.Outcome, req.Winners)
	if err != nil {
		transferError(c, err)
		return
	}
	Ok(c, gin.H{"scenario_id": id, "payouts": payouts}, nil)
}

func (h *TransferHandler) cancel(c *gin.Context) {
	id, _, ok := h.idsOrAbort(c)
	if !ok {
		return
	}
	if err := h.Engine.Cancel(c.Request.Context(), id); err != nil {
		transferError(c, err)
		return
	}
	Ok(c, gin.H{"scenario_id": id, "status": "cancelled"}, nil)
}

func (h *TransferHandler) idsOrAbort(c *gin.Context) (scenarioID, callerID uint64, ok bool) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return 0, 0, false
	}
	scenarioID = uint64Param(c, "id")
	if scenarioID == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return 0, 0, false
	}
	callerID = auth.UserID(c)
	if callerID == 0 {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return 0, 0, false
	}
	return scenarioID, callerID, true
}

// transferError maps the engine's error taxonomy onto HTTP statuses.
// Contention errors carry a retryable flag so clients re-fetch and retry
// instead of surfacing a failure.
func transferError(c *gin.Context, err error) {
	var meta map[string]any
	if transfer.Retryable(err) {
		meta = map[string]any{"retryable": true}
	}
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, transfer.ErrUnknownPreset),
		errors.Is(err, transfer.ErrInvalidOutcome),
		errors.Is(err, transfer.ErrNoWinners):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, transfer.ErrInsufficientFunds):
		Error(c, http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, transfer.ErrProtected):
		Error(c, http.StatusLocked, err.Error(), nil)
	case errors.Is(err, transfer.ErrNotActive),
		errors.Is(err, transfer.ErrSelfSteal),
		errors.Is(err, transfer.ErrNotHolder),
		errors.Is(err, transfer.ErrAlreadyResolved),
		errors.Is(err, transfer.ErrNotClosed),
		errors.Is(err, transfer.ErrPriceChanged),
		errors.Is(err, transfer.ErrBusy):
		Error(c, http.StatusConflict, err.Error(), meta)
	default:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	}
}
