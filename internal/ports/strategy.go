package ports

import (
	"context"

	"smcbot/internal/domain"
)

// SignalDetector turns a candle window into structural signals. Implementations keep
// per-symbol state between calls.
type SignalDetector interface {
	Detect(ctx context.Context, klines []*domain.Kline) (domain.SignalSet, error)
}

// EntryStrategy decides whether the current signals qualify for an entry.
type EntryStrategy interface {
	// RequiredDataPoints returns the minimum number of klines needed for a decision.
	RequiredDataPoints() int

	// Decide returns nil, nil when nothing qualifies.
	Decide(ctx context.Context, klines []*domain.Kline, signals domain.SignalSet) (*domain.EntryDecision, error)
}
