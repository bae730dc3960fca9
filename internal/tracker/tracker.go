// Package tracker keeps the durable trade log and derives the performance
// summary from it.
package tracker

import (
	"context"
	"fmt"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/strategy/analytics"
)

// Tracker appends closed trades to the log and replays it on demand. The
// summary is never cached; every call reads the whole log.
type Tracker struct {
	repo   ports.TradeRepository
	logger ports.Logger
}

// New creates a Tracker over repo.
func New(repo ports.TradeRepository, logger ports.Logger) (*Tracker, error) {
	if repo == nil {
		return nil, fmt.Errorf("trade repository is required for tracker")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for tracker")
	}
	return &Tracker{repo: repo, logger: logger}, nil
}

// Record commits the trade and the position's terminal status. It returns
// only after the write is durable; record.ID is set on success.
func (t *Tracker) Record(ctx context.Context, record *domain.TradeRecord) error {
	op := "Record"
	if record == nil || record.PositionID == "" {
		return fmt.Errorf("%s: trade record without position: %w", op, ports.ErrInvalidRequest)
	}

	recordID, err := t.repo.RecordClose(ctx, record)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	record.ID = recordID

	t.logger.Info(ctx, "Trade recorded", map[string]interface{}{
		"recordID":   recordID,
		"positionID": record.PositionID,
		"symbol":     record.Symbol,
		"direction":  record.Direction.Label(),
		"reason":     record.Reason,
		"entryPrice": record.EntryPrice,
		"exitPrice":  record.ExitPrice,
		"pnlUSD":     record.PNLUSD,
		"pnlPct":     record.PNLPct,
		"outcome":    record.Outcome,
	})
	return nil
}

// Summary replays the full trade log.
func (t *Tracker) Summary(ctx context.Context) (domain.PerformanceSummary, error) {
	records, err := t.repo.FindAll(ctx)
	if err != nil {
		return domain.PerformanceSummary{}, fmt.Errorf("Summary: %w", err)
	}
	return analytics.Summarize(records), nil
}

// Metrics replays the full trade log into the extended report.
func (t *Tracker) Metrics(ctx context.Context) (*analytics.PerformanceMetrics, error) {
	records, err := t.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("Metrics: %w", err)
	}
	return analytics.AnalyzePerformance(records), nil
}

// Recent returns up to n trades, newest first.
func (t *Tracker) Recent(ctx context.Context, n int) ([]*domain.TradeRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	records, err := t.repo.FindRecent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return records, nil
}
