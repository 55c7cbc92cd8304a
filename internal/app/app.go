// Package app wires the economy services together for the server and the ops CLI.
package app

import (
	"context"

	"yoforex/internal/bots"
	"yoforex/internal/config"
	"yoforex/internal/db"
	"yoforex/internal/services"
	"yoforex/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	DB *gorm.DB

	Treasury      *services.TreasuryService
	Vault         *services.VaultService
	Wallet        *services.WalletService
	Badges        *services.BadgeService
	Retention     *services.RetentionService
	Activity      *services.ActivityService
	Bots          *services.BotService
	Analytics     *services.AnalyticsService
	Notifications *services.NotificationService

	Engine    *bots.Engine
	Scheduler *bots.Scheduler
}

// New builds every service on top of db. locker decides whether bot ticks
// are single-flight per process or across the deployment.
func New(cfg *config.Config, gdb *gorm.DB, locker bots.Locker) *App {
	a := &App{DB: gdb}

	a.Treasury = services.NewTreasuryService(gdb)
	a.Vault = services.NewVaultService(gdb)
	a.Wallet = services.NewWalletService(gdb, a.Vault)
	a.Badges = services.NewBadgeService(gdb, a.Wallet)
	a.Retention = services.NewRetentionService(gdb)
	a.Activity = services.NewActivityService(gdb, a.Wallet, a.Badges)
	a.Bots = services.NewBotService(gdb)
	a.Analytics = services.NewAnalyticsService(gdb, utils.GetCache())
	a.Notifications = services.NewNotificationService(gdb)

	a.Engine = bots.NewEngine(gdb, a.Treasury, a.Wallet, a.Bots, locker, bots.OptionsFromConfig(cfg))
	a.Scheduler = bots.NewScheduler(a.Engine, a.Treasury, a.Vault, a.Analytics, cfg.Bots.TickInterval, cfg.Bots.RefundHour)
	return a
}

// NewLocker returns a Redis locker when Redis is configured, else an
// in-process one. The returned close func releases the Redis client.
func NewLocker(ctx context.Context, cfg *config.Config) (bots.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		zap.L().Info("bot tick lock: in-process")
		return bots.NewLocalLocker(), func() {}, nil
	}
	rdb, err := db.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("bot tick lock: redis", zap.String("addr", cfg.Redis.Addr))
	return bots.NewRedisLocker(rdb), func() { _ = rdb.Close() }, nil
}
