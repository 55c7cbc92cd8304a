package services

import (
	"context"
	"errors"
	"time"

	"yoforex/internal/models"
	"yoforex/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityService is the write path other parts of the forum call into:
// earning events, activity stamps and thread/reply creation.
type ActivityService struct {
	db     *gorm.DB
	wallet *WalletService
	badges *BadgeService
	now    func() time.Time
}

func NewActivityService(db *gorm.DB, wallet *WalletService, badges *BadgeService) *ActivityService {
	return &ActivityService{db: db, wallet: wallet, badges: badges, now: time.Now}
}

// RecordActivity marks today as an active day for the user.
func (s *ActivityService) RecordActivity(ctx context.Context, userID uint) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ActivityDay{
			UserID: userID,
			Day:    now.Format(models.ActivityDayLayout),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("last_active_at", now).Error
	})
}

// Earn credits a coin-earning event (with its vault skim) and then
// re-evaluates badges. Badge failures are logged, the earn stands.
func (s *ActivityService) Earn(ctx context.Context, userID uint, amount int64, source models.EarnSource, sourceID *uint) error {
	if err := s.wallet.Credit(ctx, userID, amount, source, sourceID); err != nil {
		return err
	}
	s.checkBadges(ctx, userID)
	return nil
}

func (s *ActivityService) checkBadges(ctx context.Context, userID uint) {
	if _, err := s.badges.CheckAndAwardBadges(ctx, userID); err != nil {
		zap.L().Error("badge evaluation failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// CreateThread 发布主题，每天前 DailyThreadLimit 个主题获得金币
func (s *ActivityService) CreateThread(ctx context.Context, userID uint, title, content string) (*models.Thread, int64, error) {
	title = utils.SanitizeTitle(title)
	content = utils.SanitizeBody(content)
	if title == "" || content == "" {
		return nil, 0, ErrEmptyContent
	}

	thread := &models.Thread{UserID: userID, Title: title, Content: content}
	var earned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User").Create(thread).Error; err != nil {
			return err
		}
		count, err := countTodayTransactions(tx, userID, models.SourceThreadCreate, s.now())
		if err != nil {
			return err
		}
		if count >= DailyThreadLimit {
			return nil
		}
		earned = CoinsThreadCreate
		return s.wallet.CreditTx(tx, userID, earned, models.SourceThreadCreate, &thread.ID)
	})
	if err != nil {
		return nil, 0, err
	}

	s.afterPost(ctx, userID)
	return thread, earned, nil
}

// CreateReply 发表回复，每天前 DailyReplyLimit 条回复获得金币
func (s *ActivityService) CreateReply(ctx context.Context, userID, threadID uint, content string) (*models.Reply, int64, error) {
	content = utils.SanitizeBody(content)
	if content == "" {
		return nil, 0, ErrEmptyContent
	}

	reply := &models.Reply{ThreadID: threadID, UserID: userID, Content: content}
	var earned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.Select("id").First(&thread, threadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return err
		}
		if err := tx.Omit("Thread").Create(reply).Error; err != nil {
			return err
		}
		count, err := countTodayTransactions(tx, userID, models.SourceReplyCreate, s.now())
		if err != nil {
			return err
		}
		if count >= DailyReplyLimit {
			return nil
		}
		earned = CoinsReplyCreate
		return s.wallet.CreditTx(tx, userID, earned, models.SourceReplyCreate, &reply.ID)
	})
	if err != nil {
		return nil, 0, err
	}

	s.afterPost(ctx, userID)
	return reply, earned, nil
}

func (s *ActivityService) afterPost(ctx context.Context, userID uint) {
	if err := s.RecordActivity(ctx, userID); err != nil {
		zap.L().Error("record activity failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	s.checkBadges(ctx, userID)
}
