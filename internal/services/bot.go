package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"yoforex/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxBotFleet   = 15
	MinTrustLevel = 2
	MaxTrustLevel = 5
)

// Daily caps used when a bot is created without explicit ones.
const (
	DefaultMaxLikesPerDay     = 20
	DefaultMaxFollowsPerDay   = 5
	DefaultMaxPurchasesPerDay = 2
)

type BotInput struct {
	Username           string            `json:"username"`
	Purpose            models.BotPurpose `json:"purpose"`
	TrustLevel         *int              `json:"trust_level"`
	MaxLikesPerDay     *int              `json:"max_likes_per_day"`
	MaxFollowsPerDay   *int              `json:"max_follows_per_day"`
	MaxPurchasesPerDay *int              `json:"max_purchases_per_day"`
	PersonaProfile     *string           `json:"persona_profile"`
}

type BotService struct {
	db *gorm.DB
}

func NewBotService(db *gorm.DB) *BotService {
	return &BotService{db: db}
}

func validateBotFields(b *models.Bot) error {
	if !b.Purpose.Valid() {
		return ErrInvalidBotPurpose
	}
	if b.TrustLevel < MinTrustLevel || b.TrustLevel > MaxTrustLevel {
		return ErrInvalidTrustLevel
	}
	if b.MaxLikesPerDay < 0 || b.MaxFollowsPerDay < 0 || b.MaxPurchasesPerDay < 0 {
		return ErrInvalidBotCaps
	}
	return nil
}

func applyBotInput(b *models.Bot, in BotInput) {
	if in.Purpose != "" {
		b.Purpose = in.Purpose
	}
	if in.TrustLevel != nil {
		b.TrustLevel = *in.TrustLevel
	}
	if in.MaxLikesPerDay != nil {
		b.MaxLikesPerDay = *in.MaxLikesPerDay
	}
	if in.MaxFollowsPerDay != nil {
		b.MaxFollowsPerDay = *in.MaxFollowsPerDay
	}
	if in.MaxPurchasesPerDay != nil {
		b.MaxPurchasesPerDay = *in.MaxPurchasesPerDay
	}
	if in.PersonaProfile != nil {
		b.PersonaProfile = *in.PersonaProfile
	}
}

// Create registers a new bot, inactive, together with the identity user it
// follows and buys as. The fleet never grows past MaxBotFleet.
func (s *BotService) Create(ctx context.Context, in BotInput) (*models.Bot, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, ErrBotUsernameRequired
	}

	bot := &models.Bot{
		Username:           username,
		TrustLevel:         MinTrustLevel,
		MaxLikesPerDay:     DefaultMaxLikesPerDay,
		MaxFollowsPerDay:   DefaultMaxFollowsPerDay,
		MaxPurchasesPerDay: DefaultMaxPurchasesPerDay,
	}
	applyBotInput(bot, in)
	if err := validateBotFields(bot); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住设置行，串行化建 bot，否则并发创建会越过舰队上限
		var setting models.EconomySetting
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&setting, models.EconomySettingID).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Bot{}).Count(&count).Error; err != nil {
			return err
		}
		if count >= MaxBotFleet {
			return ErrBotFleetFull
		}

		var taken int64
		if err := tx.Model(&models.Bot{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrBotUsernameTaken
		}

		identity, err := botIdentity(tx, username)
		if err != nil {
			return err
		}
		bot.UserID = &identity.ID

		return tx.Create(bot).Error
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("bot created", zap.Uint("bot_id", bot.ID), zap.String("username", bot.Username), zap.String("purpose", string(bot.Purpose)))
	return bot, nil
}

func botEmail(username string) string {
	return fmt.Sprintf("%s@bots.yoforex.local", strings.ToLower(username))
}

// botIdentity returns the identity user for username. A deleted bot leaves its
// identity behind, which is reused when the name comes back; an identity still
// owned by another bot, or a real account on that email, means the name is taken.
func botIdentity(tx *gorm.DB, username string) (*models.User, error) {
	email := botEmail(username)

	var identity models.User
	err := tx.Where("email = ?", email).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = models.User{
			Username: username,
			Email:    email,
			Role:     "user",
			IsBot:    true,
		}
		if err := tx.Create(&identity).Error; err != nil {
			return nil, err
		}
		return &identity, nil
	}
	if err != nil {
		return nil, err
	}
	if !identity.IsBot {
		return nil, ErrBotUsernameTaken
	}

	var owners int64
	if err := tx.Model(&models.Bot{}).Where("user_id = ?", identity.ID).Count(&owners).Error; err != nil {
		return nil, err
	}
	if owners > 0 {
		return nil, ErrBotUsernameTaken
	}
	return &identity, nil
}

func (s *BotService) Get(ctx context.Context, id uint) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.WithContext(ctx).First(&bot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *BotService) List(ctx context.Context) ([]models.Bot, error) {
	var bots []models.Bot
	err := s.db.WithContext(ctx).Order("id ASC").Find(&bots).Error
	return bots, err
}

// Update changes persona, purpose, trust and caps. Username and activation
// are not editable here.
func (s *BotService) Update(ctx context.Context, id uint, in BotInput) (*models.Bot, error) {
	bot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyBotInput(bot, in)
	if err := validateBotFields(bot); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(bot).Select(
		"purpose", "trust_level", "max_likes_per_day", "max_follows_per_day", "max_purchases_per_day", "persona_profile",
	).Updates(bot).Error; err != nil {
		return nil, err
	}
	return bot, nil
}

// SetActive sets activation explicitly, or flips it when active is nil.
func (s *BotService) SetActive(ctx context.Context, id uint, active *bool) (*models.Bot, error) {
	bot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := !bot.IsActive
	if active != nil {
		next = *active
	}
	if err := s.db.WithContext(ctx).Model(bot).UpdateColumn("is_active", next).Error; err != nil {
		return nil, err
	}
	bot.IsActive = next
	zap.L().Info("bot activation changed", zap.Uint("bot_id", id), zap.Bool("active", next))
	return bot, nil
}

// Delete removes the bot. Its action history and identity user stay.
func (s *BotService) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Bot{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBotNotFound
	}
	return nil
}

// ListActiveBots returns active bots, optionally narrowed to some purposes.
func (s *BotService) ListActiveBots(ctx context.Context, purposes ...models.BotPurpose) ([]models.Bot, error) {
	q := s.db.WithContext(ctx).Where("is_active = ?", true)
	if len(purposes) > 0 {
		q = q.Where("purpose IN ?", purposes)
	}
	var bots []models.Bot
	err := q.Order("id ASC").Find(&bots).Error
	return bots, err
}
