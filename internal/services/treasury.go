package services

import (
	"context"
	"fmt"
	"time"

	"yoforex/internal/metrics"
	"yoforex/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SpendResult reports whether the treasury authorized a spend.
// A rejected spend is a normal outcome, not an error.
type SpendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const (
	msgSpendAuthorized   = "spend authorized"
	msgInvalidAmount     = "amount must be a positive integer"
	msgDailyCapReached   = "treasury daily cap reached"
	msgInsufficientFunds = "treasury balance insufficient"
)

type TreasuryService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTreasuryService(db *gorm.DB) *TreasuryService {
	return &TreasuryService{db: db, now: time.Now}
}

// AuthorizeSpend spends amount from the treasury in its own transaction.
func (s *TreasuryService) AuthorizeSpend(ctx context.Context, amount int64, reason string, meta map[string]any) (SpendResult, error) {
	var res SpendResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.AuthorizeSpendTx(tx, amount, reason, meta)
		return err
	})
	if err != nil {
		return SpendResult{}, err
	}
	if res.Success {
		metrics.TreasurySpend.Add(float64(amount))
	}
	return res, nil
}

// AuthorizeSpendTx checks and applies the spend with one conditional UPDATE so
// concurrent callers can never both pass a cap only one of them fits under.
// On success the audit row is written in the same transaction.
func (s *TreasuryService) AuthorizeSpendTx(tx *gorm.DB, amount int64, reason string, meta map[string]any) (SpendResult, error) {
	if amount <= 0 {
		return SpendResult{Success: false, Message: msgInvalidAmount}, nil
	}

	result := tx.Model(&models.Treasury{}).
		Where("id = ? AND balance >= ? AND daily_spent + ? <= daily_cap", models.TreasuryID, amount, amount).
		UpdateColumns(map[string]any{
			"balance":     gorm.Expr("balance - ?", amount),
			"daily_spent": gorm.Expr("daily_spent + ?", amount),
		})
	if result.Error != nil {
		return SpendResult{}, result.Error
	}

	var t models.Treasury
	if err := tx.First(&t, models.TreasuryID).Error; err != nil {
		return SpendResult{}, err
	}

	if result.RowsAffected == 0 {
		msg := msgInsufficientFunds
		if t.DailySpent+amount > t.DailyCap {
			msg = msgDailyCapReached
		}
		metrics.TreasuryRejected.WithLabelValues(msg).Inc()
		return SpendResult{Success: false, Message: msg}, nil
	}

	entry := models.TreasuryLog{
		Kind:         models.TreasuryLogSpend,
		Amount:       amount,
		Reason:       reason,
		Context:      datatypes.JSONMap(meta),
		BalanceAfter: t.Balance,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return SpendResult{}, err
	}
	return SpendResult{Success: true, Message: msgSpendAuthorized}, nil
}

// Refill adds coins to the treasury. It never touches the daily spend.
func (s *TreasuryService) Refill(ctx context.Context, amount int64, adminID uint) (models.Treasury, error) {
	if amount <= 0 {
		return models.Treasury{}, ErrInvalidAmount
	}

	var t models.Treasury
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Treasury{}).
			Where("id = ?", models.TreasuryID).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}
		if err := tx.First(&t, models.TreasuryID).Error; err != nil {
			return err
		}
		return tx.Create(&models.TreasuryLog{
			Kind:         models.TreasuryLogRefill,
			Amount:       amount,
			Reason:       "admin refill",
			Context:      datatypes.JSONMap{"admin_id": adminID},
			BalanceAfter: t.Balance,
		}).Error
	})
	if err != nil {
		return models.Treasury{}, err
	}

	zap.L().Info("treasury refilled", zap.Int64("amount", amount), zap.Uint("admin_id", adminID), zap.Int64("balance", t.Balance))
	return t, nil
}

// ResetDaily zeroes the daily spend. Only the midnight job and the ops CLI call it.
func (s *TreasuryService) ResetDaily(ctx context.Context) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Treasury
		if err := tx.First(&t, models.TreasuryID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Treasury{}).
			Where("id = ?", models.TreasuryID).
			UpdateColumns(map[string]any{"daily_spent": 0, "last_reset_at": now}).Error; err != nil {
			return err
		}
		zap.L().Info("treasury daily spend reset", zap.Int64("spent_before_reset", t.DailySpent))
		return tx.Create(&models.TreasuryLog{
			Kind:         models.TreasuryLogReset,
			Amount:       t.DailySpent,
			Reason:       "daily reset",
			BalanceAfter: t.Balance,
		}).Error
	})
}

func (s *TreasuryService) Snapshot(ctx context.Context) (models.Treasury, error) {
	var t models.Treasury
	err := s.db.WithContext(ctx).First(&t, models.TreasuryID).Error
	return t, err
}

// UpdatePolicy changes the daily cap and/or aggression level. A cap below
// what has already been spent today is refused.
func (s *TreasuryService) UpdatePolicy(ctx context.Context, dailyCap *int64, aggression *int) (models.Treasury, error) {
	updates := map[string]any{}
	q := s.db.WithContext(ctx).Model(&models.Treasury{}).Where("id = ?", models.TreasuryID)

	if dailyCap != nil {
		if *dailyCap < 0 {
			return models.Treasury{}, ErrInvalidDailyCap
		}
		updates["daily_cap"] = *dailyCap
		q = q.Where("daily_spent <= ?", *dailyCap)
	}
	if aggression != nil {
		if *aggression < 1 || *aggression > 10 {
			return models.Treasury{}, ErrInvalidAggression
		}
		updates["aggression_level"] = *aggression
	}
	if len(updates) > 0 {
		result := q.UpdateColumns(updates)
		if result.Error != nil {
			return models.Treasury{}, result.Error
		}
		if result.RowsAffected == 0 {
			return models.Treasury{}, ErrDailyCapBelowSpent
		}
	}
	return s.Snapshot(ctx)
}

// WouldExceedWalletCap reports whether crediting amount would push the user
// above the configured wallet cap. A cap of 0 disables the guard.
func (s *TreasuryService) WouldExceedWalletCap(ctx context.Context, userID uint, amount int64) (bool, error) {
	return s.WouldExceedWalletCapTx(s.db.WithContext(ctx), userID, amount)
}

func (s *TreasuryService) WouldExceedWalletCapTx(tx *gorm.DB, userID uint, amount int64) (bool, error) {
	var setting models.EconomySetting
	if err := tx.First(&setting, models.EconomySettingID).Error; err != nil {
		return false, fmt.Errorf("load economy settings: %w", err)
	}
	if setting.WalletCap <= 0 {
		return false, nil
	}

	var user models.User
	if err := tx.Select("id", "coins").First(&user, userID).Error; err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user.Coins+amount > setting.WalletCap, nil
}

func (s *TreasuryService) Settings(ctx context.Context) (models.EconomySetting, error) {
	var setting models.EconomySetting
	err := s.db.WithContext(ctx).First(&setting, models.EconomySettingID).Error
	return setting, err
}

// UpdateSettings toggles bot purchases and/or changes the wallet cap.
func (s *TreasuryService) UpdateSettings(ctx context.Context, botPurchases *bool, walletCap *int64) (models.EconomySetting, error) {
	updates := map[string]any{}
	if botPurchases != nil {
		updates["bot_purchases_enabled"] = *botPurchases
	}
	if walletCap != nil {
		if *walletCap < 0 {
			return models.EconomySetting{}, ErrInvalidWalletCap
		}
		updates["wallet_cap"] = *walletCap
	}
	if len(updates) > 0 {
		updates["updated_at"] = s.now()
		if err := s.db.WithContext(ctx).Model(&models.EconomySetting{}).
			Where("id = ?", models.EconomySettingID).
			UpdateColumns(updates).Error; err != nil {
			return models.EconomySetting{}, err
		}
		zap.L().Info("economy settings updated", zap.Any("changes", updates))
	}
	return s.Settings(ctx)
}
