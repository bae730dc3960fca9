package utils

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"smcbot/internal/domain"
)

// WriteKlinesToCSV writes klines to filename, creating parent directories.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteKlines(file, klines)
}

// WriteKlines writes klines as CSV with a header row.
func WriteKlines(out io.Writer, klines []*domain.Kline) error {
	writer := csv.NewWriter(out)

	if err := writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, k := range klines {
		if err := writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			formatFloat(k.Open),
			formatFloat(k.High),
			formatFloat(k.Low),
			formatFloat(k.Close),
			formatFloat(k.Volume),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrades writes the trade log as CSV with a header row.
func WriteTrades(out io.Writer, records []*domain.TradeRecord) error {
	writer := csv.NewWriter(out)

	header := []string{"id", "position_id", "symbol", "direction", "entry_price", "exit_price", "quantity",
		"leverage", "margin_usd", "stop_loss", "take_profit", "pnl_usd", "pnl_pct", "opened_at", "closed_at",
		"reason", "outcome"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := writer.Write([]string{
			strconv.FormatInt(r.ID, 10),
			r.PositionID,
			r.Symbol,
			r.Direction.Label(),
			formatFloat(r.EntryPrice),
			formatFloat(r.ExitPrice),
			formatFloat(r.Quantity),
			strconv.Itoa(r.Leverage),
			formatFloat(r.MarginUSD),
			formatFloat(r.StopLoss),
			formatFloat(r.TakeProfit),
			formatFloat(r.PNLUSD),
			formatFloat(r.PNLPct),
			r.OpenedAt.Format(time.RFC3339),
			r.ClosedAt.Format(time.RFC3339),
			string(r.Reason),
			string(r.Outcome),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
