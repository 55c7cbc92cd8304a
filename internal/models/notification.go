package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeBadge  NotificationType = "badge"
	NotificationTypeVault  NotificationType = "vault"
	NotificationTypeSystem NotificationType = "system"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    uint             `gorm:"not null;index" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	Reason    string           `gorm:"type:text" json:"reason"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
