package models

import (
	"time"

	"gorm.io/datatypes"
)

// TreasuryID is the primary key of the singleton treasury row.
const TreasuryID = 1

// Treasury 平台共享金库，bot 的所有支出都从这里扣
type Treasury struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Balance         int64      `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	DailyCap        int64      `gorm:"not null;default:0" json:"daily_cap"`
	DailySpent      int64      `gorm:"not null;default:0" json:"daily_spent"`
	AggressionLevel int        `gorm:"not null;default:5" json:"aggression_level"` // 1-10
	LastResetAt     *time.Time `json:"last_reset_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type TreasuryLogKind string

const (
	TreasuryLogSpend  TreasuryLogKind = "spend"
	TreasuryLogRefill TreasuryLogKind = "refill"
	TreasuryLogReset  TreasuryLogKind = "reset"
)

// TreasuryLog is the append-only audit trail of treasury mutations.
type TreasuryLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Kind         TreasuryLogKind   `gorm:"size:10;not null;index" json:"kind"`
	Amount       int64             `gorm:"not null" json:"amount"`
	Reason       string            `gorm:"size:100;not null" json:"reason"`
	Context      datatypes.JSONMap `json:"context"`
	BalanceAfter int64             `json:"balance_after"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}

// EconomySettingID is the primary key of the singleton settings row.
const EconomySettingID = 1

type EconomySetting struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	BotPurchasesEnabled bool      `gorm:"not null;default:false" json:"bot_purchases_enabled"`
	WalletCap           int64     `gorm:"not null;default:0" json:"wallet_cap"` // 0 表示不限制
	UpdatedAt           time.Time `json:"updated_at"`
}
