package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scenariomarket/internal/auth"
	"scenariomarket/internal/dupgate"
	"scenariomarket/internal/repository"
	"scenariomarket/internal/service"
	"scenariomarket/internal/transfer"
)

type ScenarioHandler struct {
	Scenarios *service.ScenarioService
	Engine    *transfer.Engine
	Gate      *dupgate.Gate
}

func (h *ScenarioHandler) Register(r *gin.Engine) {
	g := r.Group("/api/scenarios")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/check-duplicate", h.checkDuplicate)
	g.GET("/:id", h.get)
	g.GET("/:id/state", h.state)
	g.GET("/:id/history", h.history)
}

type createScenarioRequest struct {
	Category    string `json:"category" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (h *ScenarioHandler) create(c *gin.Context) {
	if h.Scenarios == nil {
		Error(c, http.StatusServiceUnavailable, "scenario service unavailable", nil)
		return
	}
	callerID := auth.UserID(c)
	if callerID == 0 {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	var req createScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sc, gate, err := h.Scenarios.Create(c.Request.Context(), service.CreateScenarioParams{
		CreatorID:   callerID,
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case err == service.ErrDuplicate:
			// Point the creator at the existing scenario so they can steal
			// it instead of re-creating it.
			Error(c, http.StatusConflict, "near-identical scenario already exists", gin.H{
				"decision": gate.Decision,
				"matches":  gate.Matches,
			})
		case err == service.ErrInvalidScenario:
			Error(c, http.StatusBadRequest, err.Error(), nil)
		case err == transfer.ErrInsufficientFunds:
			Error(c, http.StatusPaymentRequired, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	var meta map[string]any
	if gate.Decision == dupgate.DecisionWarn {
		meta = map[string]any{"decision": gate.Decision, "matches": gate.Matches}
	}
	Ok(c, sc, meta)
}

func (h *ScenarioHandler) list(c *gin.Context) {
	if h.Scenarios == nil {
		Error(c, http.StatusServiceUnavailable, "scenario service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var holderID *uint64
	if v := strings.TrimSpace(c.Query("holder_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			holderID = &id
		}
	}
	params := repository.ListScenariosParams{
		Status:   strQueryPtr(c, "status"),
		Category: strQueryPtr(c, "category"),
		HolderID: holderID,
		Limit:    limit,
		Offset:   offset,
		OrderBy:  "created_at",
		Asc:      boolPtr(false),
	}
	items, total, err := h.Scenarios.List(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *ScenarioHandler) get(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Scenarios.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "scenario not found", nil)
		return
	}
	Ok(c, item, nil)
}

// state returns the advisory snapshot shown before a steal attempt. The
// quoted next price can go stale the moment it is rendered; the engine
// re-derives it under lock.
func (h *ScenarioHandler) state(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	snap, err := h.Engine.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		if err == transfer.ErrNotFound {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, snap, nil)
}

func (h *ScenarioHandler) history(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Scenarios.History(c.Request.Context(), id, limit, offset)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *ScenarioHandler) checkDuplicate(c *gin.Context) {
	if h.Gate == nil {
		Error(c, http.StatusServiceUnavailable, "duplicate gate unavailable", nil)
		return
	}
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		Error(c, http.StatusBadRequest, "title is required", nil)
		return
	}
	result := h.Gate.Evaluate(c.Request.Context(), title, c.Query("description"), c.Query("category"))
	Ok(c, result, nil)
}
