package bots

import (
	"context"
	"errors"
	"time"

	"yoforex/internal/services"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler drives the engine tick and the daily economy jobs.
type Scheduler struct {
	engine    *Engine
	treasury  *services.TreasuryService
	vault     *services.VaultService
	analytics *services.AnalyticsService

	interval   time.Duration
	refundHour int
}

func NewScheduler(engine *Engine, treasury *services.TreasuryService, vault *services.VaultService, analytics *services.AnalyticsService, interval time.Duration, refundHour int) *Scheduler {
	return &Scheduler{
		engine:     engine,
		treasury:   treasury,
		vault:      vault,
		analytics:  analytics,
		interval:   interval,
		refundHour: refundHour,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	zap.L().Info("[Scheduler] started",
		zap.Duration("tick_interval", s.interval),
		zap.Int("refund_hour", s.refundHour),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.tickLoop(gctx); return nil })
	g.Go(func() error { s.dailyLoop(gctx, "midnight", 0, func(c context.Context) { _ = s.RunMidnight(c) }); return nil })
	g.Go(func() error { s.dailyLoop(gctx, "refund_sweep", s.refundHour, s.runRefundSweep); return nil })
	err := g.Wait()

	zap.L().Warn("[Scheduler] stopped")
	return err
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
				zap.L().Error("[Scheduler] bot tick failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) dailyLoop(ctx context.Context, name string, hour int, job func(context.Context)) {
	for {
		now := time.Now()
		next := nextRunTime(now, hour, 0)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.String("job", name),
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)
		select {
		case <-time.After(next.Sub(now)):
			job(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs a tick immediately. The admin panel and the ops CLI use it.
func (s *Scheduler) RunNow(ctx context.Context) (*TickReport, error) {
	report, err := s.engine.Tick(ctx)
	if err == nil && s.analytics != nil {
		s.analytics.Invalidate()
	}
	return report, err
}

// RunMidnight resets the treasury day, then unlocks matured vaults, then
// extends inactive users' locks. A failing step does not stop the next one.
func (s *Scheduler) RunMidnight(ctx context.Context) error {
	start := time.Now()
	var errs []error

	if err := s.treasury.ResetDaily(ctx); err != nil {
		zap.L().Error("[Scheduler] treasury reset failed", zap.Error(err))
		errs = append(errs, err)
	}
	if _, err := s.vault.UnlockMaturedVaults(ctx); err != nil {
		zap.L().Error("[Scheduler] vault unlock failed", zap.Error(err))
		errs = append(errs, err)
	}
	if _, err := s.vault.ExtendVaultUnlockForInactiveUsers(ctx); err != nil {
		zap.L().Error("[Scheduler] vault extension failed", zap.Error(err))
		errs = append(errs, err)
	}

	zap.L().Info("[Scheduler] midnight jobs finished", zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}

func (s *Scheduler) runRefundSweep(ctx context.Context) {
	if _, err := s.engine.RefundSweep(ctx); err != nil {
		zap.L().Error("[Scheduler] refund sweep failed", zap.Error(err))
	}
}

// nextRunTime returns the next hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
