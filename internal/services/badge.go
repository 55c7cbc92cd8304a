package services

import (
	"context"
	"fmt"
	"time"

	"yoforex/internal/metrics"
	"yoforex/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeMetric string

const (
	MetricReplies        BadgeMetric = "replies"
	MetricThreads        BadgeMetric = "threads"
	MetricEarlyThreads   BadgeMetric = "early_threads"
	MetricVaultUnlocked  BadgeMetric = "vault_unlocked"
	MetricDistinctBuyers BadgeMetric = "distinct_buyers"
	MetricContributions  BadgeMetric = "contributions"
)

// Threads started in [EarlyBirdFromHour, EarlyBirdToHour) local time count as early.
const (
	EarlyBirdFromHour = 5
	EarlyBirdToHour   = 8
)

type BadgeDefinition struct {
	Type      models.BadgeType `json:"type"`
	Name      string           `json:"name"`
	Metric    BadgeMetric      `json:"metric"`
	Threshold int64            `json:"threshold"`
	Reward    int64            `json:"reward"`
}

var badgeCatalog = []BadgeDefinition{
	{Type: models.BadgeHelpfulReplier, Name: "Helpful Replier", Metric: MetricReplies, Threshold: 50, Reward: 50},
	{Type: models.BadgeThreadStarter, Name: "Thread Starter", Metric: MetricThreads, Threshold: 25, Reward: 50},
	{Type: models.BadgeEarlyBird, Name: "Early Bird", Metric: MetricEarlyThreads, Threshold: 10, Reward: 25},
	{Type: models.BadgeVaultKeeper, Name: "Vault Keeper", Metric: MetricVaultUnlocked, Threshold: 500, Reward: 100},
	{Type: models.BadgeMarketplaceStar, Name: "Marketplace Star", Metric: MetricDistinctBuyers, Threshold: 10, Reward: 100},
	{Type: models.BadgeTopContributor, Name: "Top Contributor", Metric: MetricContributions, Threshold: 100, Reward: 150},
}

func BadgeCatalog() []BadgeDefinition {
	out := make([]BadgeDefinition, len(badgeCatalog))
	copy(out, badgeCatalog)
	return out
}

func LookupBadge(t models.BadgeType) (BadgeDefinition, bool) {
	for _, def := range badgeCatalog {
		if def.Type == t {
			return def, true
		}
	}
	return BadgeDefinition{}, false
}

type BadgeService struct {
	db     *gorm.DB
	wallet *WalletService
	now    func() time.Time
}

func NewBadgeService(db *gorm.DB, wallet *WalletService) *BadgeService {
	return &BadgeService{db: db, wallet: wallet, now: time.Now}
}

func (s *BadgeService) metricValue(db *gorm.DB, userID uint, metric BadgeMetric) (int64, error) {
	var n int64
	switch metric {
	case MetricReplies:
		err := db.Model(&models.Reply{}).Where("user_id = ?", userID).Count(&n).Error
		return n, err
	case MetricThreads:
		err := db.Model(&models.Thread{}).Where("user_id = ?", userID).Count(&n).Error
		return n, err
	case MetricEarlyThreads:
		var created []time.Time
		if err := db.Model(&models.Thread{}).Where("user_id = ?", userID).Pluck("created_at", &created).Error; err != nil {
			return 0, err
		}
		for _, t := range created {
			h := t.Local().Hour()
			if h >= EarlyBirdFromHour && h < EarlyBirdToHour {
				n++
			}
		}
		return n, nil
	case MetricVaultUnlocked:
		err := db.Model(&models.VaultCoin{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("user_id = ? AND status IN ?", userID, []models.VaultStatus{models.VaultUnlocked, models.VaultClaimed}).
			Scan(&n).Error
		return n, err
	case MetricDistinctBuyers:
		err := db.Model(&models.ContentPurchase{}).
			Where("seller_id = ?", userID).
			Distinct("buyer_id").
			Count(&n).Error
		return n, err
	case MetricContributions:
		threads, err := s.metricValue(db, userID, MetricThreads)
		if err != nil {
			return 0, err
		}
		replies, err := s.metricValue(db, userID, MetricReplies)
		if err != nil {
			return 0, err
		}
		return threads + replies, nil
	}
	return 0, fmt.Errorf("unknown badge metric %q", metric)
}

func (s *BadgeService) heldBadges(db *gorm.DB, userID uint) (map[models.BadgeType]models.UserBadge, error) {
	var badges []models.UserBadge
	if err := db.Where("user_id = ?", userID).Find(&badges).Error; err != nil {
		return nil, err
	}
	held := make(map[models.BadgeType]models.UserBadge, len(badges))
	for _, b := range badges {
		held[b.BadgeType] = b
	}
	return held, nil
}

// award inserts the badge and pays its reward in one transaction. A
// concurrent evaluation that already inserted the row makes this a no-op.
func (s *BadgeService) award(ctx context.Context, userID uint, def BadgeDefinition) (*models.UserBadge, error) {
	now := s.now()
	var awarded *models.UserBadge

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		badge := models.UserBadge{
			UserID:     userID,
			BadgeType:  def.Type,
			BadgeName:  def.Name,
			CoinReward: def.Reward,
			Claimed:    true,
			ClaimedAt:  &now,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&badge)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := s.wallet.CreditTx(tx, userID, def.Reward, models.SourceBadgeReward, &badge.ID); err != nil {
			return err
		}
		if err := notify(tx, userID, models.NotificationTypeBadge,
			fmt.Sprintf("You earned the %s badge and %d coins.", def.Name, def.Reward)); err != nil {
			return err
		}
		awarded = &badge
		return nil
	})
	if err != nil {
		return nil, err
	}
	if awarded != nil {
		metrics.BadgesAwarded.WithLabelValues(string(def.Type)).Inc()
		zap.L().Info("badge awarded", zap.Uint("user_id", userID), zap.String("badge", string(def.Type)), zap.Int64("reward", def.Reward))
	}
	return awarded, nil
}

// CheckAndAwardBadges awards every catalog badge whose metric the user has
// crossed for the first time. Badges already held are never paid again.
func (s *BadgeService) CheckAndAwardBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	db := s.db.WithContext(ctx)
	held, err := s.heldBadges(db, userID)
	if err != nil {
		return nil, err
	}

	var awarded []models.UserBadge
	for _, def := range badgeCatalog {
		if _, ok := held[def.Type]; ok {
			continue
		}
		value, err := s.metricValue(db, userID, def.Metric)
		if err != nil {
			return awarded, fmt.Errorf("badge %s: %w", def.Type, err)
		}
		if value < def.Threshold {
			continue
		}
		badge, err := s.award(ctx, userID, def)
		if err != nil {
			return awarded, fmt.Errorf("award %s: %w", def.Type, err)
		}
		if badge != nil {
			awarded = append(awarded, *badge)
		}
	}
	return awarded, nil
}

// ClaimBadge is the user-facing claim: it awards the badge now if the
// threshold is met and explains why not otherwise.
func (s *BadgeService) ClaimBadge(ctx context.Context, userID uint, badgeType models.BadgeType) (ClaimResult, error) {
	def, ok := LookupBadge(badgeType)
	if !ok {
		return ClaimResult{Message: "unknown badge"}, nil
	}

	db := s.db.WithContext(ctx)
	held, err := s.heldBadges(db, userID)
	if err != nil {
		return ClaimResult{}, err
	}
	if _, ok := held[def.Type]; ok {
		return ClaimResult{Message: "badge already claimed"}, nil
	}

	value, err := s.metricValue(db, userID, def.Metric)
	if err != nil {
		return ClaimResult{}, err
	}
	if value < def.Threshold {
		return ClaimResult{Message: fmt.Sprintf("not eligible yet (%d/%d)", value, def.Threshold)}, nil
	}

	badge, err := s.award(ctx, userID, def)
	if err != nil {
		return ClaimResult{}, err
	}
	if badge == nil {
		return ClaimResult{Message: "badge already claimed"}, nil
	}
	return ClaimResult{Success: true, Message: "badge claimed", Amount: def.Reward}, nil
}

type BadgeProgress struct {
	BadgeDefinition
	Current int64 `json:"current"`
	Earned  bool  `json:"earned"`
	Percent int   `json:"percent"`
}

func (s *BadgeService) Progress(ctx context.Context, userID uint) ([]BadgeProgress, error) {
	db := s.db.WithContext(ctx)
	held, err := s.heldBadges(db, userID)
	if err != nil {
		return nil, err
	}

	out := make([]BadgeProgress, 0, len(badgeCatalog))
	for _, def := range badgeCatalog {
		value, err := s.metricValue(db, userID, def.Metric)
		if err != nil {
			return nil, err
		}
		pct := 100
		if value < def.Threshold {
			pct = int(value * 100 / def.Threshold)
		}
		_, earned := held[def.Type]
		out = append(out, BadgeProgress{
			BadgeDefinition: def,
			Current:         value,
			Earned:          earned,
			Percent:         pct,
		})
	}
	return out, nil
}
