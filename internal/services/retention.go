package services

import (
	"context"
	"time"

	"yoforex/internal/models"
	"yoforex/internal/utils"

	"gorm.io/gorm"
)

const (
	RetentionWindow   = 7 * 24 * time.Hour
	RetentionBoostCap = 5
)

type RetentionScore struct {
	RealScore  int `json:"real_score"`
	BotBoost   int `json:"bot_boost"`
	TotalScore int `json:"total_score"`
}

type LoyaltyInfo struct {
	ActiveDays int    `json:"active_days"`
	Tier       string `json:"tier"`
	Icon       string `json:"icon"`
}

type RetentionService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRetentionService(db *gorm.DB) *RetentionService {
	return &RetentionService{db: db, now: time.Now}
}

// GetBotRetentionBoost sums the retention weight of bot actions aimed at the
// user over the trailing window. Bots can never add more than RetentionBoostCap.
func (s *RetentionService) GetBotRetentionBoost(ctx context.Context, userID uint) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.BotAction{}).
		Select("COALESCE(SUM(retention_weight), 0)").
		Where("recipient_id = ? AND executed_at >= ?", userID, s.now().Add(-RetentionWindow)).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total > RetentionBoostCap {
		return RetentionBoostCap, nil
	}
	return int(total), nil
}

// GetUserRetentionScore splits the score into what the user did (active days,
// threads count double, replies) and what bots contributed.
func (s *RetentionService) GetUserRetentionScore(ctx context.Context, userID uint) (RetentionScore, error) {
	db := s.db.WithContext(ctx)
	since := s.now().Add(-RetentionWindow)

	var days, threads, replies int64
	if err := db.Model(&models.ActivityDay{}).
		Where("user_id = ? AND day >= ?", userID, since.Format(models.ActivityDayLayout)).
		Count(&days).Error; err != nil {
		return RetentionScore{}, err
	}
	if err := db.Model(&models.Thread{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&threads).Error; err != nil {
		return RetentionScore{}, err
	}
	if err := db.Model(&models.Reply{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&replies).Error; err != nil {
		return RetentionScore{}, err
	}

	boost, err := s.GetBotRetentionBoost(ctx, userID)
	if err != nil {
		return RetentionScore{}, err
	}

	realScore := int(days + 2*threads + replies)
	return RetentionScore{RealScore: realScore, BotBoost: boost, TotalScore: realScore + boost}, nil
}

// LoyaltyTier maps lifetime active days onto the tier ladder.
func LoyaltyTier(activeDays int) string {
	tier, _ := utils.GetLoyaltyTier(activeDays)
	return tier
}

func (s *RetentionService) Loyalty(ctx context.Context, userID uint) (LoyaltyInfo, error) {
	var days int64
	if err := s.db.WithContext(ctx).Model(&models.ActivityDay{}).
		Where("user_id = ?", userID).
		Count(&days).Error; err != nil {
		return LoyaltyInfo{}, err
	}
	tier, icon := utils.GetLoyaltyTier(int(days))
	return LoyaltyInfo{ActiveDays: int(days), Tier: tier, Icon: icon}, nil
}
