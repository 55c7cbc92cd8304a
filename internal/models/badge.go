package models

import (
	"time"
)

type BadgeType string

const (
	BadgeHelpfulReplier  BadgeType = "helpful_replier"
	BadgeThreadStarter   BadgeType = "thread_starter"
	BadgeEarlyBird       BadgeType = "early_bird"
	BadgeVaultKeeper     BadgeType = "vault_keeper"
	BadgeMarketplaceStar BadgeType = "marketplace_star"
	BadgeTopContributor  BadgeType = "top_contributor"
)

// UserBadge 每个用户每种徽章最多一行
type UserBadge struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeType  BadgeType  `gorm:"size:40;not null;uniqueIndex:idx_user_badge" json:"badge_type"`
	BadgeName  string     `gorm:"size:100;not null" json:"badge_name"`
	CoinReward int64      `gorm:"not null" json:"coin_reward"`
	Claimed    bool       `gorm:"not null;default:false" json:"claimed"`
	ClaimedAt  *time.Time `json:"claimed_at"`
	CreatedAt  time.Time  `json:"created_at"`
}
