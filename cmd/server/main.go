package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yoforex/internal/app"
	"yoforex/internal/config"
	"yoforex/internal/db"
	"yoforex/internal/handlers"
	"yoforex/internal/logger"
	"yoforex/internal/middleware"
	"yoforex/internal/router"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := logger.New(cfg.AppEnv, cfg.AppName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Init(cfg)
	if err != nil {
		lg.Fatal("database init failed", zap.Error(err))
	}

	locker, closeLocker, err := app.NewLocker(ctx, cfg)
	if err != nil {
		lg.Fatal("lock backend init failed", zap.Error(err))
	}
	defer closeLocker()

	a := app.New(cfg, gdb, locker)

	// 后台任务：bot tick、零点结算、退款巡检
	go func() {
		if err := a.Scheduler.Run(ctx); err != nil {
			lg.Error("scheduler exited", zap.Error(err))
		}
	}()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("yoforex_session", store))
	r.Use(middleware.LoadUser(gdb))

	router.RegisterRoutes(r, router.Handlers{
		Admin:        handlers.NewAdminHandler(a.Treasury, a.Bots, a.Analytics, a.Scheduler),
		User:         handlers.NewUserHandler(a.Wallet, a.Vault, a.Badges, a.Retention),
		Forum:        handlers.NewForumHandler(a.Activity),
		Notification: handlers.NewNotificationHandler(a.Notifications),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		lg.Info("yoforex server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http server shutdown failed", zap.Error(err))
	}
}
