package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"smcbot/internal/ports"
)

var closeCmd = &cobra.Command{
	Use:   "close <symbol>",
	Short: "Close the open position on a symbol at market",
	Long: `Close sends a market order that exits the open position on the given
symbol and records it in the trade log with reason MANUAL.`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

func init() {
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	symbol := strings.ToUpper(args[0])

	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	pos, err := env.repo.FindOpenBySymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", symbol, err)
	}
	if pos == nil {
		return fmt.Errorf("no open position on %s", symbol)
	}

	svc, err := env.tradingService()
	if err != nil {
		return err
	}
	if err := svc.Load(ctx); err != nil {
		return err
	}

	rec, err := svc.Positions().ForceClose(ctx, symbol)
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("no open position on %s", symbol)
	}
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", symbol, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Closed %s %s at %g: %.4f USD (%.2f%%)\n",
		rec.Symbol, rec.Direction.Label(), rec.ExitPrice, rec.PNLUSD, rec.PNLPct)
	return nil
}
