package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smcbot/internal/utils"
)

var (
	fetchSymbol   string
	fetchInterval string
	fetchDays     int
	fetchOut      string
)

var fetchKlinesCmd = &cobra.Command{
	Use:   "fetch-klines",
	Short: "Download historical candles to CSV",
	Long: `Fetch-klines downloads closed futures candles for one symbol over the last
--days days and writes them to a CSV file under --out.`,
	Args: cobra.NoArgs,
	RunE: runFetchKlines,
}

func init() {
	rootCmd.AddCommand(fetchKlinesCmd)
	fetchKlinesCmd.Flags().StringVarP(&fetchSymbol, "symbol", "s", "BTCUSDT", "trading symbol")
	fetchKlinesCmd.Flags().StringVarP(&fetchInterval, "interval", "i", "15m", "candle interval")
	fetchKlinesCmd.Flags().IntVarP(&fetchDays, "days", "d", 30, "number of days to download")
	fetchKlinesCmd.Flags().StringVarP(&fetchOut, "out", "o", "data", "output directory")
}

func runFetchKlines(cmd *cobra.Command, args []string) error {
	if fetchDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", fetchDays)
	}
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	client, err := env.exchange()
	if err != nil {
		return err
	}

	symbol := strings.ToUpper(fetchSymbol)
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -fetchDays)
	klines, err := client.GetKlinesRange(cmd.Context(), symbol, fetchInterval, start, end)
	if err != nil {
		return fmt.Errorf("failed to fetch klines: %w", err)
	}

	filename := filepath.Join(fetchOut, fmt.Sprintf("%s_%s_%s_%s.csv",
		symbol, fetchInterval, start.Format("20060102"), end.Format("20060102")))
	if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
		return fmt.Errorf("failed to write klines: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d klines to %s\n", len(klines), filename)
	return nil
}
