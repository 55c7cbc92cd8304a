package utils

import (
	"math"
	"time"
)

// Loyalty tiers by lifetime active days.
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
	TierDiamond  = "diamond"
)

// GetLoyaltyTier 根据活跃天数返回忠诚度等级
func GetLoyaltyTier(activeDays int) (tier string, icon string) {
	switch {
	case activeDays >= 90:
		return TierDiamond, "💎"
	case activeDays >= 67:
		return TierPlatinum, "🏆"
	case activeDays >= 45:
		return TierGold, "🥇"
	case activeDays >= 22:
		return TierSilver, "🥈"
	default:
		return TierBronze, "🥉"
	}
}

// DaysUntil 计算距离目标时间还有几天（不足一天按一天算），已过期返回 0
func DaysUntil(now, target time.Time) int {
	if !target.After(now) {
		return 0
	}
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}
