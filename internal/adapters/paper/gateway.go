// Package paper provides the dry-run execution gateway. Orders fill
// immediately at the requested price; only price reads reach the exchange.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/id"
	"smcbot/internal/ports"
)

// Gateway implements ports.ExecutionGateway without placing orders.
type Gateway struct {
	prices   ports.PriceSource
	logger   ports.Logger
	stepSize float64
	now      func() time.Time

	mu     sync.Mutex
	orders int
}

// Config holds the paper gateway settings.
type Config struct {
	Prices   ports.PriceSource
	Logger   ports.Logger
	StepSize float64 // Quantity increment reported for every symbol
}

// New creates a paper gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Prices == nil {
		return nil, fmt.Errorf("price source is required for paper gateway")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper gateway")
	}
	step := cfg.StepSize
	if step <= 0 {
		step = 0.001
	}
	return &Gateway{prices: cfg.Prices, logger: cfg.Logger, stepSize: step, now: time.Now}, nil
}

// IsDryRun always reports true.
func (g *Gateway) IsDryRun() bool {
	return true
}

// GetPrice delegates to the configured price source.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return g.prices.GetPrice(ctx, symbol)
}

// Instrument returns the configured step size for any symbol.
func (g *Gateway) Instrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return &domain.Instrument{Symbol: symbol, StepSize: g.stepSize, MinQty: g.stepSize}, nil
}

// OpenPosition fills intent at its entry price, or at the current price when
// the intent carries none.
func (g *Gateway) OpenPosition(ctx context.Context, intent domain.OrderIntent) (*domain.Position, error) {
	op := "PaperOpenPosition"
	if intent.Quantity <= 0 {
		return nil, fmt.Errorf("%s: quantity %v: %w", op, intent.Quantity, ports.ErrInvalidRequest)
	}
	fill := intent.EntryPrice
	if fill <= 0 {
		price, err := g.prices.GetPrice(ctx, intent.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		fill = price
	}

	g.mu.Lock()
	g.orders++
	g.mu.Unlock()

	pos := &domain.Position{
		ID:         id.New(),
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		EntryPrice: fill,
		Quantity:   intent.Quantity,
		Leverage:   intent.Leverage,
		MarginUSD:  intent.MarginUSD,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		OpenedAt:   g.now().UTC(),
		Status:     domain.StatusOpen,
		DryRun:     true,
	}
	g.logger.Info(ctx, "[DRY RUN] "+op, map[string]interface{}{
		"symbol":     pos.Symbol,
		"direction":  pos.Direction.Label(),
		"quantity":   pos.Quantity,
		"entryPrice": fill,
		"stopLoss":   pos.StopLoss,
		"takeProfit": pos.TakeProfit,
	})
	return pos, nil
}

// ClosePosition fills the exit at price.
func (g *Gateway) ClosePosition(ctx context.Context, pos *domain.Position, reason domain.CloseReason, price float64) (*domain.TradeRecord, error) {
	op := "PaperClosePosition"
	if pos == nil || !pos.IsOpen() {
		return nil, fmt.Errorf("%s: position is not open: %w", op, ports.ErrInvalidRequest)
	}
	if price <= 0 {
		current, err := g.prices.GetPrice(ctx, pos.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		price = current
	}

	g.mu.Lock()
	g.orders++
	g.mu.Unlock()

	record := domain.NewTradeRecord(pos, price, reason, g.now().UTC())
	g.logger.Info(ctx, "[DRY RUN] "+op, map[string]interface{}{
		"symbol":    pos.Symbol,
		"reason":    reason,
		"exitPrice": price,
		"pnlUSD":    record.PNLUSD,
		"pnlPct":    record.PNLPct,
	})
	return record, nil
}

// Orders returns the number of simulated fills.
func (g *Gateway) Orders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orders
}
