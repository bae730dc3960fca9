package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smcbot/internal/domain"
	"smcbot/internal/strategy/analytics"
	"smcbot/internal/utils"
)

var (
	recentFlag int
	csvFlag    string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print performance derived from the trade log",
	Long: `Summary replays every closed trade in the database and prints win rate,
cumulative ROI, drawdown and per-month results. With --csv the full trade log
is also exported.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().IntVarP(&recentFlag, "recent", "n", 10, "number of recent trades to list")
	summaryCmd.Flags().StringVar(&csvFlag, "csv", "", "write the full trade log to this CSV file")
}

func runSummary(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	metrics, err := env.tracker.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trade log: %w", err)
	}
	open, err := env.repo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	metrics.OpenPositions = len(open)

	out := cmd.OutOrStdout()
	printMetrics(out, metrics)

	if recentFlag > 0 {
		recent, err := env.tracker.Recent(ctx, recentFlag)
		if err != nil {
			return fmt.Errorf("failed to load recent trades: %w", err)
		}
		printTrades(out, recent)
	}

	if csvFlag != "" {
		all, err := env.repo.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load trade log: %w", err)
		}
		f, err := os.Create(csvFlag)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", csvFlag, err)
		}
		defer f.Close()
		if err := utils.WriteTrades(f, all); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nWrote %d trades to %s\n", len(all), csvFlag)
	}
	return nil
}

func printMetrics(out io.Writer, m *analytics.PerformanceMetrics) {
	fmt.Fprintln(out, "=== Performance Summary ===")
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Total trades\t%d\n", m.TotalTrades)
	fmt.Fprintf(w, "Wins / Losses\t%d / %d\n", m.Wins, m.Losses)
	fmt.Fprintf(w, "Win rate\t%.2f%%\n", m.WinRate)
	fmt.Fprintf(w, "Total PNL\t%.4f USD\n", m.TotalPNLUSD)
	fmt.Fprintf(w, "Cumulative ROI\t%.4f\n", m.CumulativeROI)
	fmt.Fprintf(w, "Avg win / loss\t%.2f%% / %.2f%%\n", m.AvgWinPct, m.AvgLossPct)
	fmt.Fprintf(w, "Best / worst\t%.2f%% / %.2f%%\n", m.BestTradePct, m.WorstTradePct)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Max drawdown\t%.4f USD\n", m.MaxDrawdownUSD)
	fmt.Fprintf(w, "Avg duration\t%s\n", m.AverageTradeDuration.Round(time.Minute))
	fmt.Fprintf(w, "Open positions\t%d\n", m.OpenPositions)
	w.Flush()

	monthly := m.GetMonthlyReturns()
	if len(monthly) == 0 {
		return
	}
	fmt.Fprintln(out, "\n=== Monthly PNL (USD) ===")
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	for _, r := range monthly {
		fmt.Fprintf(w, "%s\t%.4f\t\n", r.Month.Format("2006-01"), r.Return)
	}
	w.Flush()
}

func printTrades(out io.Writer, records []*domain.TradeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "\nNo closed trades yet.")
		return
	}
	fmt.Fprintln(out, "\n=== Recent Trades ===")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.Debug)
	fmt.Fprintln(w, "Closed\tSymbol\tSide\tEntry\tExit\tPNL USD\tPNL %\tReason\t")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%.4f\t%.2f\t%s\t\n",
			r.ClosedAt.Format("2006-01-02 15:04"), r.Symbol, r.Direction.Label(),
			r.EntryPrice, r.ExitPrice, r.PNLUSD, r.PNLPct, r.Reason)
	}
	w.Flush()
}
