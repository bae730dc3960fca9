package ports

import (
	"context"

	"smcbot/internal/domain"
)

// MarketData supplies closed candles for a symbol.
type MarketData interface {
	// GetKlines retrieves the most recent klines for the given symbol, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}

// PriceSource returns the current reference price for a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// ExecutionGateway is the single entry point for placing and closing positions.
// Live and dry-run implementations are selected when the application is composed.
type ExecutionGateway interface {
	PriceSource

	// OpenPosition executes the entry described by intent and returns the filled position.
	OpenPosition(ctx context.Context, intent domain.OrderIntent) (*domain.Position, error)

	// ClosePosition exits pos at market. price is the trigger price observed by the caller;
	// implementations report the actual fill in the returned record.
	ClosePosition(ctx context.Context, pos *domain.Position, reason domain.CloseReason, price float64) (*domain.TradeRecord, error)

	// Instrument returns the trading rules for symbol.
	Instrument(ctx context.Context, symbol string) (*domain.Instrument, error)

	// IsDryRun reports whether orders are simulated.
	IsDryRun() bool
}

// ExchangeSession is implemented by gateways that sign requests against a live
// account. The service checks connectivity and syncs the clock before trading.
type ExchangeSession interface {
	Ping(ctx context.Context) error
	SetServerTime(ctx context.Context) error
}

// CloseReconciler is implemented by gateways that can tell whether the exit
// order of a position already filled. ReconcileClose returns nil, nil when no
// filled exit exists.
type CloseReconciler interface {
	ReconcileClose(ctx context.Context, pos *domain.Position) (*domain.TradeRecord, error)
}
