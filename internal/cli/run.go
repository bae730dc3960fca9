package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop until interrupted",
	Long: `Run loads open positions from the database and then runs one cycle every
CYCLE_INTERVAL_SECONDS: open positions are checked against their stop and
target first, then every configured symbol is scanned for a new entry.

SIGINT or SIGTERM stops the loop after the current cycle. Open positions stay
open and are picked up again on the next start.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single cycle and exit",
	Long: `Once runs exactly one evaluation and scan cycle. Use it to drive the bot
from cron or another external scheduler.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	svc, err := env.tradingService()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := svc.Start(ctx); err != nil {
		env.logger.Error(ctx, err, "Trading service exited with error")
		return err
	}
	env.logger.Info(ctx, "Application finished gracefully.")
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	svc, err := env.tradingService()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return svc.RunOnce(ctx)
}
