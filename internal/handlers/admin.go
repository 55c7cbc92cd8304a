package handlers

import (
	"context"
	"errors"
	"net/http"

	"yoforex/internal/bots"
	"yoforex/internal/services"

	"github.com/gin-gonic/gin"
)

// EngineRunner runs a bot tick on demand.
type EngineRunner interface {
	RunNow(ctx context.Context) (*bots.TickReport, error)
}

type AdminHandler struct {
	treasury  *services.TreasuryService
	bots      *services.BotService
	analytics *services.AnalyticsService
	runner    EngineRunner
}

func NewAdminHandler(treasury *services.TreasuryService, botSvc *services.BotService, analytics *services.AnalyticsService, runner EngineRunner) *AdminHandler {
	return &AdminHandler{treasury: treasury, bots: botSvc, analytics: analytics, runner: runner}
}

// botError maps registry errors to HTTP codes.
func botError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrBotNotFound):
		jsonFail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrBotFleetFull), errors.Is(err, services.ErrBotUsernameTaken):
		jsonFail(c, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrBotUsernameRequired),
		errors.Is(err, services.ErrInvalidBotPurpose),
		errors.Is(err, services.ErrInvalidTrustLevel),
		errors.Is(err, services.ErrInvalidBotCaps):
		jsonFail(c, http.StatusBadRequest, err.Error())
	default:
		internalError(c, err)
	}
}

// Treasury 金库概览 (GET /admin/treasury)
func (h *AdminHandler) Treasury(c *gin.Context) {
	t, err := h.treasury.Snapshot(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	settings, err := h.treasury.Settings(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"treasury": t, "settings": settings})
}

type refillRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// Refill 金库充值 (POST /admin/treasury/refill)
func (h *AdminHandler) Refill(c *gin.Context) {
	var req refillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonFail(c, http.StatusBadRequest, "amount is required")
		return
	}
	admin := currentUser(c)

	t, err := h.treasury.Refill(c.Request.Context(), req.Amount, admin.ID)
	if errors.Is(err, services.ErrInvalidAmount) {
		jsonFail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "treasury refilled", gin.H{"treasury": t})
}

type policyRequest struct {
	DailyCap        *int64 `json:"daily_cap"`
	AggressionLevel *int   `json:"aggression_level"`
}

// Policy 调整每日上限和激进程度 (POST /admin/treasury/policy)
func (h *AdminHandler) Policy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonFail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.treasury.UpdatePolicy(c.Request.Context(), req.DailyCap, req.AggressionLevel)
	switch {
	case errors.Is(err, services.ErrInvalidDailyCap),
		errors.Is(err, services.ErrInvalidAggression),
		errors.Is(err, services.ErrDailyCapBelowSpent):
		jsonFail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		internalError(c, err)
		return
	}
	jsonOK(c, "treasury policy updated", gin.H{"treasury": t})
}

type settingsRequest struct {
	BotPurchasesEnabled *bool  `json:"bot_purchases_enabled"`
	WalletCap           *int64 `json:"wallet_cap"`
}

// UpdateSettings 经济系统开关 (POST /admin/economy/settings)
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonFail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := h.treasury.UpdateSettings(c.Request.Context(), req.BotPurchasesEnabled, req.WalletCap)
	if errors.Is(err, services.ErrInvalidWalletCap) {
		jsonFail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "economy settings updated", gin.H{"settings": settings})
}

func (h *AdminHandler) ListBots(c *gin.Context) {
	list, err := h.bots.List(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"bots": list, "fleet_limit": services.MaxBotFleet})
}

func (h *AdminHandler) CreateBot(c *gin.Context) {
	var in services.BotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonFail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	bot, err := h.bots.Create(c.Request.Context(), in)
	if err != nil {
		botError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "bot created", "bot": bot})
}

func (h *AdminHandler) GetBot(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	bot, err := h.bots.Get(c.Request.Context(), id)
	if err != nil {
		botError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"bot": bot})
}

func (h *AdminHandler) UpdateBot(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var in services.BotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonFail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	bot, err := h.bots.Update(c.Request.Context(), id, in)
	if err != nil {
		botError(c, err)
		return
	}
	jsonOK(c, "bot updated", gin.H{"bot": bot})
}

func (h *AdminHandler) DeleteBot(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := h.bots.Delete(c.Request.Context(), id); err != nil {
		botError(c, err)
		return
	}
	jsonOK(c, "bot deleted", nil)
}

type toggleRequest struct {
	Active *bool `json:"active"`
}

// ToggleBot 启用/停用 bot，不带 active 时取反
func (h *AdminHandler) ToggleBot(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req toggleRequest
	// 空 body 表示切换
	_ = c.ShouldBindJSON(&req)

	bot, err := h.bots.SetActive(c.Request.Context(), id, req.Active)
	if err != nil {
		botError(c, err)
		return
	}
	jsonOK(c, "bot activation changed", gin.H{"bot": bot})
}

// RunEngine 立即执行一次 bot tick (POST /admin/bots/run)
func (h *AdminHandler) RunEngine(c *gin.Context) {
	report, err := h.runner.RunNow(c.Request.Context())
	if errors.Is(err, bots.ErrTickInProgress) {
		jsonFail(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "bot engine run finished", gin.H{"report": report})
}

// Analytics bot 支出与真实用户收入对比 (GET /admin/bots/analytics)
func (h *AdminHandler) Analytics(c *gin.Context) {
	a, err := h.analytics.Get(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"analytics": a})
}
