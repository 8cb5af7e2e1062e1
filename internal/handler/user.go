package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"scenariomarket/internal/auth"
	"scenariomarket/internal/repository"
	"scenariomarket/internal/service"
)

type UserHandler struct {
	Users *service.UserService
}

func (h *UserHandler) Register(r *gin.Engine) {
	g := r.Group("/api/users")
	g.POST("/register", h.register)
	g.POST("/deposit", h.deposit)
	g.GET("/:id/balance", h.balance)
	g.GET("/:id/ledger", h.ledger)
}

type registerRequest struct {
	Username       string          `json:"username" binding:"required"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

func (h *UserHandler) register(c *gin.Context) {
	if h.Users == nil {
		Error(c, http.StatusServiceUnavailable, "user service unavailable", nil)
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user, err := h.Users.Register(c.Request.Context(), req.Username, req.InitialDeposit)
	if err != nil {
		if err == service.ErrInvalidUser {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, user, nil)
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *UserHandler) deposit(c *gin.Context) {
	if h.Users == nil {
		Error(c, http.StatusServiceUnavailable, "user service unavailable", nil)
		return
	}
	callerID := auth.UserID(c)
	if callerID == 0 {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	balance, err := h.Users.Deposit(c.Request.Context(), callerID, req.Amount)
	if err != nil {
		if err == service.ErrInvalidUser {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"balance": balance}, nil)
}

func (h *UserHandler) balance(c *gin.Context) {
	if h.Users == nil {
		Error(c, http.StatusServiceUnavailable, "user service unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	user, err := h.Users.Balance(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	Ok(c, gin.H{"user_id": user.ID, "username": user.Username, "balance": user.Balance}, nil)
}

func (h *UserHandler) ledger(c *gin.Context) {
	if h.Users == nil {
		Error(c, http.StatusServiceUnavailable, "user service unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Users.LedgerEntries(c.Request.Context(), id, repository.ListBalanceEntriesParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
