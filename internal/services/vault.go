package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yoforex/internal/metrics"
	"yoforex/internal/models"
	"yoforex/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	VaultBonusPercent   = 10
	VaultLockPeriod     = 30 * 24 * time.Hour
	InactivityWindow    = 7 * 24 * time.Hour
	InactivityExtension = 7 * 24 * time.Hour
)

// ClaimResult is what a user sees after a claim attempt.
type ClaimResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Amount  int64  `json:"amount"`
}

const (
	msgVaultNotFound     = "vault not found"
	msgVaultLocked       = "vault not yet unlocked"
	msgVaultClaimed      = "vault already claimed"
	msgNoUnlockedVault   = "no unlocked vault coins"
	msgVaultClaimSuccess = "vault coins claimed"
)

var errClaimConflict = errors.New("vault entries changed during claim")

// VaultBonus is floor(amount * 10%). Non-positive results mean no bonus.
func VaultBonus(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount * VaultBonusPercent / 100
}

type VaultService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewVaultService(db *gorm.DB) *VaultService {
	return &VaultService{db: db, now: time.Now}
}

// CreateVaultBonus skims the bonus for one coin-earning event.
// Earnings too small to produce a whole coin create nothing.
func (s *VaultService) CreateVaultBonus(ctx context.Context, userID uint, amount int64, earnedFrom models.EarnSource, sourceID *uint) (*models.VaultCoin, error) {
	var entry *models.VaultCoin
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.CreateBonusTx(tx, userID, amount, earnedFrom, sourceID)
		return err
	})
	return entry, err
}

func (s *VaultService) CreateBonusTx(tx *gorm.DB, userID uint, amount int64, earnedFrom models.EarnSource, sourceID *uint) (*models.VaultCoin, error) {
	bonus := VaultBonus(amount)
	if bonus <= 0 {
		return nil, nil
	}
	entry := &models.VaultCoin{
		UserID:     userID,
		Amount:     bonus,
		EarnedFrom: earnedFrom,
		SourceID:   sourceID,
		UnlockAt:   s.now().Add(VaultLockPeriod),
		Status:     models.VaultLocked,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// UnlockMaturedVaults flips every locked entry whose unlock time has passed.
// Running it again in the same window matches nothing.
func (s *VaultService) UnlockMaturedVaults(ctx context.Context) (int64, error) {
	now := s.now()
	var unlocked int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type userTotal struct {
			UserID uint
			Total  int64
		}
		var totals []userTotal
		if err := tx.Model(&models.VaultCoin{}).
			Select("user_id, SUM(amount) AS total").
			Where("status = ? AND unlock_at <= ?", models.VaultLocked, now).
			Group("user_id").
			Scan(&totals).Error; err != nil {
			return err
		}
		if len(totals) == 0 {
			return nil
		}

		target, _ := models.VaultLocked.Next()
		result := tx.Model(&models.VaultCoin{}).
			Where("status = ? AND unlock_at <= ?", models.VaultLocked, now).
			Updates(map[string]any{"status": target, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		unlocked = result.RowsAffected

		for _, t := range totals {
			if err := notify(tx, t.UserID, models.NotificationTypeVault,
				fmt.Sprintf("%d vault coins are now unlocked and ready to claim.", t.Total)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.VaultUnlocked.Add(float64(unlocked))
	zap.L().Info("matured vaults unlocked", zap.Int64("entries", unlocked))
	return unlocked, nil
}

// ExtendVaultUnlockForInactiveUsers pushes locked, not yet matured entries of
// users idle for InactivityWindow forward by InactivityExtension.
// Unlocked and claimed entries are never touched.
func (s *VaultService) ExtendVaultUnlockForInactiveUsers(ctx context.Context) (int64, error) {
	now := s.now()
	cutoff := now.Add(-InactivityWindow)
	var extended int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recent := tx.Model(&models.ActivityDay{}).
			Select("user_id").
			Where("day >= ?", cutoff.Format(models.ActivityDayLayout))
		inactive := tx.Model(&models.User{}).
			Select("id").
			Where("(last_active_at IS NULL OR last_active_at < ?) AND id NOT IN (?)", cutoff, recent)

		var entries []models.VaultCoin
		if err := tx.Select("id", "unlock_at").
			Where("status = ? AND unlock_at > ? AND user_id IN (?)", models.VaultLocked, now, inactive).
			Find(&entries).Error; err != nil {
			return err
		}

		for _, e := range entries {
			result := tx.Model(&models.VaultCoin{}).
				Where("id = ? AND status = ?", e.ID, models.VaultLocked).
				UpdateColumns(map[string]any{"unlock_at": e.UnlockAt.Add(InactivityExtension), "updated_at": now})
			if result.Error != nil {
				return result.Error
			}
			extended += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("vault unlocks extended for inactive users", zap.Int64("entries", extended))
	return extended, nil
}

// ClaimVaultCoins claims one unlocked entry (vaultID set) or all of the
// user's unlocked entries, crediting the main balance in the same transaction.
func (s *VaultService) ClaimVaultCoins(ctx context.Context, userID uint, vaultID *uint) (ClaimResult, error) {
	now := s.now()
	var res ClaimResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []models.VaultCoin
		if vaultID != nil {
			var v models.VaultCoin
			err := tx.Where("id = ? AND user_id = ?", *vaultID, userID).First(&v).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				res = ClaimResult{Message: msgVaultNotFound}
				return nil
			}
			if err != nil {
				return err
			}
			switch v.Status {
			case models.VaultLocked:
				res = ClaimResult{Message: msgVaultLocked}
				return nil
			case models.VaultClaimed:
				res = ClaimResult{Message: msgVaultClaimed}
				return nil
			case models.VaultUnlocked:
				entries = append(entries, v)
			}
		} else {
			if err := tx.Where("user_id = ? AND status = ?", userID, models.VaultUnlocked).
				Find(&entries).Error; err != nil {
				return err
			}
		}
		if len(entries) == 0 {
			res = ClaimResult{Message: msgNoUnlockedVault}
			return nil
		}

		ids := make([]uint, 0, len(entries))
		var total int64
		for _, e := range entries {
			ids = append(ids, e.ID)
			total += e.Amount
		}

		target, _ := models.VaultUnlocked.Next()
		result := tx.Model(&models.VaultCoin{}).
			Where("id IN ? AND user_id = ? AND status = ?", ids, userID, models.VaultUnlocked).
			Updates(map[string]any{"status": target, "claimed_at": now, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(ids)) {
			// another claim won the race; roll back so claim and credit stay together
			return errClaimConflict
		}

		if err := addCoins(tx, userID, total, models.SourceVaultClaim, vaultID); err != nil {
			return err
		}
		res = ClaimResult{Success: true, Message: msgVaultClaimSuccess, Amount: total}
		return nil
	})
	if errors.Is(err, errClaimConflict) {
		return ClaimResult{Message: msgVaultClaimed}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	if res.Success {
		zap.L().Info("vault coins claimed", zap.Uint("user_id", userID), zap.Int64("amount", res.Amount))
	}
	return res, nil
}

type VaultSummary struct {
	Locked       int64      `json:"locked"`
	Unlocked     int64      `json:"unlocked"`
	Claimed      int64      `json:"claimed"`
	NextUnlockAt *time.Time `json:"next_unlock_at"`
	DaysToUnlock int        `json:"days_to_unlock"` // 距下一笔解锁的天数
}

func (s *VaultService) Summary(ctx context.Context, userID uint) (VaultSummary, error) {
	db := s.db.WithContext(ctx)

	type statusTotal struct {
		Status models.VaultStatus
		Total  int64
	}
	var totals []statusTotal
	if err := db.Model(&models.VaultCoin{}).
		Select("status, SUM(amount) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&totals).Error; err != nil {
		return VaultSummary{}, err
	}

	var sum VaultSummary
	for _, t := range totals {
		switch t.Status {
		case models.VaultLocked:
			sum.Locked = t.Total
		case models.VaultUnlocked:
			sum.Unlocked = t.Total
		case models.VaultClaimed:
			sum.Claimed = t.Total
		}
	}

	var next models.VaultCoin
	err := db.Where("user_id = ? AND status = ?", userID, models.VaultLocked).
		Order("unlock_at ASC").
		First(&next).Error
	if err == nil {
		sum.NextUnlockAt = &next.UnlockAt
		sum.DaysToUnlock = utils.DaysUntil(s.now(), next.UnlockAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return VaultSummary{}, err
	}
	return sum, nil
}

// ListEntries returns the user's vault entries, newest first.
func (s *VaultService) ListEntries(ctx context.Context, userID uint) ([]models.VaultCoin, error) {
	var entries []models.VaultCoin
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&entries).Error
	return entries, err
}
