// Package cli holds the smcbot command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	dbPathFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "smcbot",
	Short: "Smart-money-concepts signal bot for Binance USDT-M futures",
	Long: `smcbot scans a fixed list of futures symbols for order-block setups
confirmed by a break of structure, opens risk-sized positions with ATR based
stops and targets, and keeps a durable trade log.

Configuration comes from the environment or a .env file. DRY_RUN=true (the
default) simulates fills while still reading live market data.

Examples:
  smcbot run
  smcbot once
  smcbot summary --recent 20
  smcbot positions
  smcbot close ETHUSDT
  smcbot fetch-klines --symbol BTCUSDT --interval 15m --days 30`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "override DB_PATH")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override LOG_LEVEL (DEBUG, INFO, WARN, ERROR)")
}
