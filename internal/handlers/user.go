package handlers

import (
	"net/http"

	"yoforex/internal/models"
	"yoforex/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	wallet    *services.WalletService
	vault     *services.VaultService
	badges    *services.BadgeService
	retention *services.RetentionService
}

func NewUserHandler(wallet *services.WalletService, vault *services.VaultService, badges *services.BadgeService, retention *services.RetentionService) *UserHandler {
	return &UserHandler{wallet: wallet, vault: vault, badges: badges, retention: retention}
}

// Vault 金库概览 (GET /dashboard/vault)
func (h *UserHandler) Vault(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	summary, err := h.vault.Summary(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	entries, err := h.vault.ListEntries(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	balance, err := h.wallet.Balance(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"summary": summary, "entries": entries, "coins": balance})
}

type claimVaultRequest struct {
	VaultID *uint `json:"vault_id"`
}

// ClaimVault 领取已解锁的金库金币，不带 vault_id 时全部领取
func (h *UserHandler) ClaimVault(c *gin.Context) {
	user := currentUser(c)
	var req claimVaultRequest
	_ = c.ShouldBindJSON(&req)

	res, err := h.vault.ClaimVaultCoins(c.Request.Context(), user.ID, req.VaultID)
	if err != nil {
		internalError(c, err)
		return
	}
	respond(c, http.StatusOK, res.Success, res.Message, gin.H{"amount": res.Amount})
}

// Badges 徽章进度 (GET /dashboard/badges)
func (h *UserHandler) Badges(c *gin.Context) {
	user := currentUser(c)
	progress, err := h.badges.Progress(c.Request.Context(), user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"badges": progress})
}

func (h *UserHandler) ClaimBadge(c *gin.Context) {
	user := currentUser(c)
	badgeType := models.BadgeType(c.Param("type"))

	res, err := h.badges.ClaimBadge(c.Request.Context(), user.ID, badgeType)
	if err != nil {
		internalError(c, err)
		return
	}
	respond(c, http.StatusOK, res.Success, res.Message, gin.H{"amount": res.Amount})
}

// Retention 留存分数与忠诚度等级 (GET /dashboard/retention)
func (h *UserHandler) Retention(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	score, err := h.retention.GetUserRetentionScore(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	loyalty, err := h.retention.Loyalty(ctx, user.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	jsonOK(c, "", gin.H{"score": score, "loyalty": loyalty})
}
