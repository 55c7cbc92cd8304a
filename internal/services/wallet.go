package services

import (
	"context"
	"time"

	"yoforex/internal/models"

	"gorm.io/gorm"
)

// 论坛发帖/回复奖励
const (
	CoinsThreadCreate = 10
	CoinsReplyCreate  = 5
)

// 每日限制
const (
	DailyThreadLimit = 3 // 每天前3个主题有金币
	DailyReplyLimit  = 3 // 每天前3条回复有金币
)

// addCoins writes the transaction row and moves the balance with an atomic
// increment, never a read-modify-write.
func addCoins(tx *gorm.DB, userID uint, amount int64, source models.EarnSource, sourceID *uint) error {
	if err := tx.Create(&models.CoinTransaction{
		UserID:   userID,
		Amount:   amount,
		Source:   source,
		SourceID: sourceID,
	}).Error; err != nil {
		return err
	}

	result := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("coins", gorm.Expr("coins + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

type WalletService struct {
	db    *gorm.DB
	vault *VaultService
}

func NewWalletService(db *gorm.DB, vault *VaultService) *WalletService {
	return &WalletService{db: db, vault: vault}
}

// CreditTx credits a user inside the caller's transaction and skims the
// vault bonus when the source qualifies.
func (s *WalletService) CreditTx(tx *gorm.DB, userID uint, amount int64, source models.EarnSource, sourceID *uint) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := addCoins(tx, userID, amount, source, sourceID); err != nil {
		return err
	}
	if source.EarnsVaultBonus() {
		if _, err := s.vault.CreateBonusTx(tx, userID, amount, source, sourceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *WalletService) Credit(ctx context.Context, userID uint, amount int64, source models.EarnSource, sourceID *uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.CreditTx(tx, userID, amount, source, sourceID)
	})
}

// RecordBotSpendTx books a bot purchase on the bot's identity wallet: the
// treasury funding and the matching spend, so the bot balance nets to zero
// and its history still shows what it bought.
func (s *WalletService) RecordBotSpendTx(tx *gorm.DB, botUserID uint, price int64, contentID uint) error {
	if err := addCoins(tx, botUserID, price, models.SourceBotFunding, &contentID); err != nil {
		return err
	}
	return addCoins(tx, botUserID, -price, models.SourceBotPurchase, &contentID)
}

func (s *WalletService) Balance(ctx context.Context, userID uint) (int64, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "coins").First(&user, userID).Error; err != nil {
		return 0, err
	}
	return user.Coins, nil
}

// startOfDay 获取当天零点
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// countTodayTransactions 统计今日指定来源的金币记录数
func countTodayTransactions(db *gorm.DB, userID uint, source models.EarnSource, now time.Time) (int64, error) {
	from := startOfDay(now)
	var count int64
	err := db.Model(&models.CoinTransaction{}).
		Where("user_id = ? AND source = ? AND created_at >= ? AND created_at < ?", userID, source, from, from.Add(24*time.Hour)).
		Count(&count).Error
	return count, err
}
