package models

import (
	"time"
)

// Content is a marketplace listing (EA, indicator, set file).
type Content struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SellerID  uint      `gorm:"not null;index" json:"seller_id"`
	Title     string    `gorm:"not null" json:"title"`
	Price     int64     `gorm:"not null;default:0;index" json:"price"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ContentPurchase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ContentID uint      `gorm:"not null;uniqueIndex:idx_content_buyer" json:"content_id"`
	BuyerID   uint      `gorm:"not null;index;uniqueIndex:idx_content_buyer" json:"buyer_id"`
	SellerID  uint      `gorm:"not null;index" json:"seller_id"`
	Price     int64     `gorm:"not null" json:"price"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
