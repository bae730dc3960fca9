package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var withPricesFlag bool

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	Long: `Positions lists every OPEN position stored in the database with its stop
and target. With --prices the current mark price is fetched and the
unrealised PNL shown.`,
	Args: cobra.NoArgs,
	RunE: runPositions,
}

func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.Flags().BoolVarP(&withPricesFlag, "prices", "p", false, "fetch current prices and show unrealised PNL")
}

func runPositions(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	open, err := env.repo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(open) == 0 {
		fmt.Fprintln(out, "No open positions.")
		return nil
	}

	var prices func(symbol string) (float64, error)
	if withPricesFlag {
		client, err := env.exchange()
		if err != nil {
			return err
		}
		prices = func(symbol string) (float64, error) { return client.GetPrice(ctx, symbol) }
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.Debug)
	fmt.Fprintln(w, "ID\tSymbol\tSide\tQty\tEntry\tSL\tTP\tOpened\tMode\tPNL USD\t")
	for _, p := range open {
		mode := "live"
		if p.DryRun {
			mode = "dry"
		}
		pnl := "-"
		if prices != nil {
			price, err := prices(p.Symbol)
			if err != nil {
				pnl = "n/a"
			} else {
				_, usd := p.PNLAt(price)
				pnl = fmt.Sprintf("%.4f", usd)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%g\t%g\t%s\t%s\t%s\t\n",
			p.ID, p.Symbol, p.Direction.Label(), p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit,
			p.OpenedAt.Format("2006-01-02 15:04"), mode, pnl)
	}
	return w.Flush()
}
