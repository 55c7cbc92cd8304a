package models

import (
	"time"
)

type BotPurpose string

const (
	BotPurposeEngagement  BotPurpose = "engagement"
	BotPurposeMarketplace BotPurpose = "marketplace"
	BotPurposeReferral    BotPurpose = "referral"
)

func (p BotPurpose) Valid() bool {
	switch p {
	case BotPurposeEngagement, BotPurposeMarketplace, BotPurposeReferral:
		return true
	}
	return false
}

type Bot struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Username           string     `gorm:"size:50;not null;uniqueIndex" json:"username"`
	UserID             *uint      `gorm:"index" json:"user_id"` // bot 的身份账号，关注/购买时作为发起方
	Purpose            BotPurpose `gorm:"size:20;not null;index" json:"purpose"`
	TrustLevel         int        `gorm:"not null;default:2" json:"trust_level"` // 2-5
	IsActive           bool       `gorm:"not null;default:false;index" json:"is_active"`
	MaxLikesPerDay     int        `gorm:"not null" json:"max_likes_per_day"`
	MaxFollowsPerDay   int        `gorm:"not null" json:"max_follows_per_day"`
	MaxPurchasesPerDay int        `gorm:"not null" json:"max_purchases_per_day"`
	PersonaProfile     string     `gorm:"type:text" json:"persona_profile"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DailyCap returns the bot's ceiling for one action type.
func (b *Bot) DailyCap(action BotActionType) int {
	switch action {
	case BotActionLike:
		return b.MaxLikesPerDay
	case BotActionFollow:
		return b.MaxFollowsPerDay
	case BotActionPurchase:
		return b.MaxPurchasesPerDay
	case BotActionRefund:
		return 0
	}
	return 0
}

type BotActionType string

const (
	BotActionLike     BotActionType = "like"
	BotActionFollow   BotActionType = "follow"
	BotActionPurchase BotActionType = "purchase"
	BotActionRefund   BotActionType = "refund" // 补偿记录，只追加
)

// RetentionWeight is the weight a successful action contributes to the
// recipient's bot retention boost.
func (a BotActionType) RetentionWeight() int {
	switch a {
	case BotActionLike:
		return 1
	case BotActionFollow:
		return 2
	case BotActionPurchase:
		return 3
	case BotActionRefund:
		return 0
	}
	return 0
}

// BotAction is append-only. Nothing updates or deletes these rows.
type BotAction struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	BotID           uint          `gorm:"not null;index" json:"bot_id"`
	ActionType      BotActionType `gorm:"size:20;not null;index" json:"action_type"`
	TargetType      string        `gorm:"size:20;not null" json:"target_type"` // thread, user, content
	TargetID        uint          `gorm:"not null;index" json:"target_id"`
	RecipientID     uint          `gorm:"not null;index" json:"recipient_id"`
	CoinDelta       int64         `gorm:"not null" json:"coin_delta"`
	RetentionWeight int           `gorm:"not null;default:0" json:"retention_weight"`
	RunID           string        `gorm:"size:36;index" json:"run_id"`
	ExecutedAt      time.Time     `gorm:"not null;index" json:"executed_at"`
}
