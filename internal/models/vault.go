package models

import (
	"time"
)

type VaultStatus string

const (
	VaultLocked   VaultStatus = "locked"
	VaultUnlocked VaultStatus = "unlocked"
	VaultClaimed  VaultStatus = "claimed"
)

// Next returns the only status this one may move to.
func (s VaultStatus) Next() (VaultStatus, bool) {
	switch s {
	case VaultLocked:
		return VaultUnlocked, true
	case VaultUnlocked:
		return VaultClaimed, true
	case VaultClaimed:
		return "", false
	}
	return "", false
}

type VaultCoin struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	UserID     uint        `gorm:"not null;index" json:"user_id"`
	Amount     int64       `gorm:"not null" json:"amount"`
	EarnedFrom EarnSource  `gorm:"size:40;not null" json:"earned_from"`
	SourceID   *uint       `json:"source_id"`
	UnlockAt   time.Time   `gorm:"not null;index" json:"unlock_at"`
	Status     VaultStatus `gorm:"size:10;not null;default:'locked';index" json:"status"`
	ClaimedAt  *time.Time  `json:"claimed_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
