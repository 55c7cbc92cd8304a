package services

import (
	"context"
	"time"

	"yoforex/internal/models"
	"yoforex/internal/utils"

	"gorm.io/gorm"
)

const (
	analyticsCacheKey = "bot_analytics"
	analyticsCacheTTL = 60 * time.Second
)

type BotAnalytics struct {
	BotSpendToday     int64     `json:"bot_spend_today"`
	BotSpendWeek      int64     `json:"bot_spend_week"`
	BotSpendAllTime   int64     `json:"bot_spend_all_time"`
	RealEarningsToday int64     `json:"real_earnings_today"`
	RealEarningsWeek  int64     `json:"real_earnings_week"`
	RealEarningsAll   int64     `json:"real_earnings_all_time"`
	BotActionsToday   int64     `json:"bot_actions_today"`
	AvgDailySpend     float64   `json:"avg_daily_spend"`
	TreasuryBalance   int64     `json:"treasury_balance"`
	DaysUntilEmpty    *int      `json:"days_until_empty"` // nil 表示按当前速度不会耗尽
	GeneratedAt       time.Time `json:"generated_at"`
}

// AnalyticsService compares what bots cost the treasury with what real users earn.
type AnalyticsService struct {
	db    *gorm.DB
	cache *utils.GlobalCache
	now   func() time.Time
}

func NewAnalyticsService(db *gorm.DB, cache *utils.GlobalCache) *AnalyticsService {
	return &AnalyticsService{db: db, cache: cache, now: time.Now}
}

func (s *AnalyticsService) botSpendSince(db *gorm.DB, since *time.Time) (int64, error) {
	q := db.Model(&models.TreasuryLog{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("kind = ?", models.TreasuryLogSpend)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var total int64
	err := q.Scan(&total).Error
	return total, err
}

func (s *AnalyticsService) realEarningsSince(db *gorm.DB, since *time.Time) (int64, error) {
	q := db.Model(&models.CoinTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("amount > 0 AND source NOT IN ?", models.BotDrivenSources())
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var total int64
	err := q.Scan(&total).Error
	return total, err
}

// Get returns the analytics, served from cache for up to a minute.
func (s *AnalyticsService) Get(ctx context.Context) (*BotAnalytics, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(analyticsCacheKey).(*BotAnalytics); ok {
			return cached, nil
		}
	}

	a, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(analyticsCacheKey, a, analyticsCacheTTL)
	}
	return a, nil
}

// Invalidate drops the cached analytics, e.g. after a manual engine run.
func (s *AnalyticsService) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(analyticsCacheKey)
	}
}

func (s *AnalyticsService) compute(ctx context.Context) (*BotAnalytics, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	today := startOfDay(now)
	week := now.AddDate(0, 0, -7)

	a := &BotAnalytics{GeneratedAt: now}
	var err error
	if a.BotSpendToday, err = s.botSpendSince(db, &today); err != nil {
		return nil, err
	}
	if a.BotSpendWeek, err = s.botSpendSince(db, &week); err != nil {
		return nil, err
	}
	if a.BotSpendAllTime, err = s.botSpendSince(db, nil); err != nil {
		return nil, err
	}
	if a.RealEarningsToday, err = s.realEarningsSince(db, &today); err != nil {
		return nil, err
	}
	if a.RealEarningsWeek, err = s.realEarningsSince(db, &week); err != nil {
		return nil, err
	}
	if a.RealEarningsAll, err = s.realEarningsSince(db, nil); err != nil {
		return nil, err
	}
	if err := db.Model(&models.BotAction{}).
		Where("executed_at >= ?", today).
		Count(&a.BotActionsToday).Error; err != nil {
		return nil, err
	}

	var t models.Treasury
	if err := db.First(&t, models.TreasuryID).Error; err != nil {
		return nil, err
	}
	a.TreasuryBalance = t.Balance

	a.AvgDailySpend = float64(a.BotSpendWeek) / 7
	if a.AvgDailySpend > 0 {
		days := int(float64(t.Balance) / a.AvgDailySpend)
		a.DaysUntilEmpty = &days
	}
	return a, nil
}
