package services

import (
	"context"

	"yoforex/internal/models"

	"gorm.io/gorm"
)

func notify(tx *gorm.DB, userID uint, typ models.NotificationType, reason string) error {
	return tx.Create(&models.Notification{
		UserID: userID,
		Type:   typ,
		Reason: reason,
	}).Error
}

type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) List(ctx context.Context, userID uint) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(50).
		Find(&notifications).Error
	return notifications, err
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead returns false when the notification does not belong to the user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	return result.RowsAffected > 0, result.Error
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}
