package models

import (
	"time"
)

// EarnSource 积分来源
type EarnSource string

const (
	SourceThreadCreate EarnSource = "thread_create"
	SourceReplyCreate  EarnSource = "reply_create"
	SourceContentSale  EarnSource = "content_sale"
	SourceBotLike      EarnSource = "bot_like"
	SourceBotFollow    EarnSource = "bot_follow"
	SourceBotSale      EarnSource = "bot_sale"     // bot 购买后卖家所得
	SourceBotPurchase  EarnSource = "bot_purchase" // 买方 bot 的补偿支出记录
	SourceBotFunding   EarnSource = "bot_funding"  // 金库拨给买方 bot 的款项
	SourceBadgeReward  EarnSource = "badge_reward"
	SourceVaultClaim   EarnSource = "vault_claim"
)

// EarnsVaultBonus reports whether a credit from this source skims a vault bonus.
func (s EarnSource) EarnsVaultBonus() bool {
	switch s {
	case SourceThreadCreate, SourceReplyCreate, SourceContentSale,
		SourceBotLike, SourceBotFollow, SourceBotSale, SourceBadgeReward:
		return true
	case SourceBotPurchase, SourceBotFunding, SourceVaultClaim:
		return false
	}
	return false
}

// BotDriven reports whether coins from this source were funded by the treasury.
func (s EarnSource) BotDriven() bool {
	switch s {
	case SourceBotLike, SourceBotFollow, SourceBotSale, SourceBotPurchase, SourceBotFunding:
		return true
	}
	return false
}

type CoinTransaction struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	Amount    int64      `gorm:"not null" json:"amount"` // 正数为增加，负数为扣除
	Source    EarnSource `gorm:"size:40;not null;index" json:"source"`
	SourceID  *uint      `json:"source_id"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

var allEarnSources = []EarnSource{
	SourceThreadCreate, SourceReplyCreate, SourceContentSale,
	SourceBotLike, SourceBotFollow, SourceBotSale, SourceBotPurchase, SourceBotFunding,
	SourceBadgeReward, SourceVaultClaim,
}

// BotDrivenSources lists every source funded by the treasury.
func BotDrivenSources() []EarnSource {
	out := make([]EarnSource, 0, len(allEarnSources))
	for _, s := range allEarnSources {
		if s.BotDriven() {
			out = append(out, s)
		}
	}
	return out
}
