package ports

import (
	"context"

	"smcbot/internal/domain"
)

// PositionRepository stores the durable snapshot of positions.
type PositionRepository interface {
	// Create saves a newly opened position.
	Create(ctx context.Context, pos *domain.Position) error
	// FindOpen returns every OPEN position ordered by symbol.
	FindOpen(ctx context.Context) ([]*domain.Position, error)
	// FindOpenBySymbol retrieves the currently open position for a given symbol, if any.
	// Returns nil, nil if no open position is found.
	FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Position, error)
	// FindByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Position, error)
}

// TradeRepository is the append-only trade log.
type TradeRepository interface {
	// RecordClose marks the position closed and appends the trade record in one transaction.
	// A second record for the same position fails with ErrRecordExists.
	RecordClose(ctx context.Context, record *domain.TradeRecord) (int64, error)
	// FindAll returns the whole log, oldest first.
	FindAll(ctx context.Context) ([]*domain.TradeRecord, error)
	// FindRecent returns up to limit records, newest first.
	FindRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error)
}
