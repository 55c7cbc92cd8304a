// Command econctl runs the economy's scheduled jobs by hand.
package main

import (
	"context"
	"fmt"
	"os"

	"yoforex/internal/app"
	"yoforex/internal/config"
	"yoforex/internal/db"
	"yoforex/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	econ        *app.App
	closeLocker = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "econctl",
	Short: "Operate the yoforex coin economy",
	Long: `econctl runs the jobs the server scheduler normally runs: a bot tick,
the midnight treasury reset and vault maturation, and the refund sweep.
It reads the same environment as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if _, err := logger.New(cfg.AppEnv, cfg.AppName+"-econctl", cfg.LogLevel); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		gdb, err := db.Init(cfg)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		locker, closer, err := app.NewLocker(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("init lock backend: %w", err)
		}
		closeLocker = closer
		econ = app.New(cfg, gdb, locker)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		closeLocker()
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
