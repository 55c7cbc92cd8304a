package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(midnightCmd)
	rootCmd.AddCommand(resetDailyCmd)
	rootCmd.AddCommand(unlockVaultsCmd)
	rootCmd.AddCommand(extendInactiveCmd)
	rootCmd.AddCommand(refundSweepCmd)
	rootCmd.AddCommand(refillCmd)

	refillCmd.Flags().Uint("admin-id", 0, "Admin user id recorded on the refill")
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one bot engine tick now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := econ.Scheduler.RunNow(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: planned=%d applied=%d skipped=%d failed=%d (%s)\n",
			report.RunID, report.Planned, report.Applied, report.Skipped, report.Failed, report.Duration)
		return nil
	},
}

var midnightCmd = &cobra.Command{
	Use:   "midnight",
	Short: "Run the midnight jobs: treasury reset, vault unlock, inactivity extension",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return econ.Scheduler.RunMidnight(cmd.Context())
	},
}

var resetDailyCmd = &cobra.Command{
	Use:   "reset-daily",
	Short: "Zero the treasury's daily spend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return econ.Treasury.ResetDaily(cmd.Context())
	},
}

var unlockVaultsCmd = &cobra.Command{
	Use:   "unlock-vaults",
	Short: "Unlock vault entries whose lock period has passed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := econ.Vault.UnlockMaturedVaults(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "unlocked %d vault entries\n", n)
		return nil
	},
}

var extendInactiveCmd = &cobra.Command{
	Use:   "extend-inactive",
	Short: "Push back locked vault entries of inactive users",
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := econ.Vault.ExtendVaultUnlockForInactiveUsers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "extended %d vault entries\n", n)
		return nil
	},
}

var refundSweepCmd = &cobra.Command{
	Use:   "refund-sweep",
	Short: "List the last day's bot purchases that a refund would cover",
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := econ.Engine.RefundSweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d bot purchases in the last 24h\n", n)
		return nil
	},
}

var refillCmd = &cobra.Command{
	Use:   "refill AMOUNT",
	Short: "Add coins to the treasury",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		adminID, _ := cmd.Flags().GetUint("admin-id")

		t, err := econ.Treasury.Refill(cmd.Context(), amount, adminID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "treasury balance: %d\n", t.Balance)
		return nil
	},
}
