package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"smcbot/internal/domain"
	"smcbot/internal/id"
	"smcbot/internal/ports"
)

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	MarginPerTrade   float64       // USD margin committed per entry
	Leverage         int           // Requested leverage
	MaxLeverage      int           // Hard cap applied to Leverage
	MaxOpenPositions int           // Concurrent OPEN positions allowed
	BalanceCooldown  time.Duration // Pause after the exchange reports insufficient funds
}

// Validate checks the sizing parameters.
func (c RiskConfig) Validate() error {
	var errs []error
	if c.MarginPerTrade <= 0 {
		errs = append(errs, fmt.Errorf("margin per trade must be positive, got %v", c.MarginPerTrade))
	}
	if c.Leverage <= 0 {
		errs = append(errs, fmt.Errorf("leverage must be positive, got %d", c.Leverage))
	}
	if c.MaxOpenPositions <= 0 {
		errs = append(errs, fmt.Errorf("max open positions must be positive, got %d", c.MaxOpenPositions))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ports.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RiskStats holds risk management statistics
type RiskStats struct {
	OpenPositions int
	TotalMargin   float64
	TotalExposure float64
	Accepted      int
	Rejected      int
	CooldownUntil time.Time
}

// RiskManager sizes entry decisions and enforces position limits. Decisions
// must be evaluated one at a time against the current open set.
type RiskManager struct {
	config RiskConfig
	stats  *RiskStats
	logger ports.Logger
	now    func() time.Time
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig, logger ports.Logger) (*RiskManager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxLeverage <= 0 {
		config.MaxLeverage = config.Leverage
	}
	return &RiskManager{
		config: config,
		stats:  &RiskStats{},
		logger: logger,
		now:    time.Now,
	}, nil
}

// Size turns a decision into an order intent or rejects it with
// ErrDuplicateEntry, ErrCapacityExceeded, ErrCooldown or ErrInvalidRequest.
func (r *RiskManager) Size(ctx context.Context, decision *domain.EntryDecision, open []*domain.Position, instrument *domain.Instrument) (*domain.OrderIntent, error) {
	op := "Size"
	if decision == nil || decision.EntryPrice <= 0 {
		return nil, r.reject(ctx, op, "", fmt.Errorf("%w: decision without entry price", ports.ErrInvalidRequest))
	}
	if err := r.config.Validate(); err != nil {
		return nil, r.reject(ctx, op, decision.Symbol, err)
	}
	if until := r.stats.CooldownUntil; r.now().Before(until) {
		return nil, r.reject(ctx, op, decision.Symbol, fmt.Errorf("%w: until %s", ports.ErrCooldown, until.Format(time.RFC3339)))
	}

	for _, p := range open {
		if p.IsOpen() && p.Symbol == decision.Symbol {
			return nil, r.reject(ctx, op, decision.Symbol, fmt.Errorf("%w: %s (position %s)", ports.ErrDuplicateEntry, decision.Symbol, p.ID))
		}
	}
	if n := countOpen(open); n >= r.config.MaxOpenPositions {
		return nil, r.reject(ctx, op, decision.Symbol, fmt.Errorf("%w: %d of %d", ports.ErrCapacityExceeded, n, r.config.MaxOpenPositions))
	}

	leverage := r.EffectiveLeverage(instrument)
	rawQty := r.config.MarginPerTrade * float64(leverage) / decision.EntryPrice

	qty := rawQty
	if instrument != nil && instrument.StepSize > 0 {
		qty = RoundToStep(rawQty, instrument.StepSize)
	}
	if qty <= 0 || (instrument != nil && qty < instrument.MinQty) {
		return nil, r.reject(ctx, op, decision.Symbol, fmt.Errorf("%w: quantity %v below exchange minimum", ports.ErrInvalidRequest, qty))
	}

	intent := &domain.OrderIntent{
		Symbol:        decision.Symbol,
		Direction:     decision.Direction,
		Quantity:      qty,
		Leverage:      leverage,
		MarginUSD:     r.config.MarginPerTrade,
		EntryPrice:    decision.EntryPrice,
		StopLoss:      decision.StopLoss,
		TakeProfit:    decision.TakeProfit,
		ClientOrderID: id.ClientOrderID(),
	}
	r.stats.Accepted++
	r.logger.Info(ctx, op+": Order intent sized", map[string]interface{}{
		"symbol":   intent.Symbol,
		"side":     intent.Direction.Label(),
		"quantity": qty,
		"rawQty":   rawQty,
		"leverage": leverage,
		"margin":   intent.MarginUSD,
		"notional": qty * decision.EntryPrice,
	})
	return intent, nil
}

// EffectiveLeverage caps the configured leverage by the configured maximum and the instrument limit.
func (r *RiskManager) EffectiveLeverage(instrument *domain.Instrument) int {
	leverage := r.config.Leverage
	if r.config.MaxLeverage > 0 && leverage > r.config.MaxLeverage {
		leverage = r.config.MaxLeverage
	}
	if instrument != nil && instrument.MaxLeverage > 0 && leverage > instrument.MaxLeverage {
		leverage = instrument.MaxLeverage
	}
	return leverage
}

// ObserveExecutionError starts the balance cooldown when the exchange reports insufficient funds.
func (r *RiskManager) ObserveExecutionError(ctx context.Context, err error) {
	if !errors.Is(err, ports.ErrInsufficientFunds) || r.config.BalanceCooldown <= 0 {
		return
	}
	r.stats.CooldownUntil = r.now().Add(r.config.BalanceCooldown)
	r.logger.Warn(ctx, "Insufficient balance, pausing new entries", map[string]interface{}{
		"until": r.stats.CooldownUntil.Format(time.RFC3339),
	})
}

// UpdateStats recomputes exposure from the current open set.
func (r *RiskManager) UpdateStats(ctx context.Context, open []*domain.Position) {
	r.stats.OpenPositions = 0
	r.stats.TotalMargin = 0
	r.stats.TotalExposure = 0
	for _, p := range open {
		if !p.IsOpen() {
			continue
		}
		r.stats.OpenPositions++
		r.stats.TotalMargin += p.MarginUSD
		r.stats.TotalExposure += p.Quantity * p.EntryPrice
	}
}

// GetStats returns the current risk management statistics
func (r *RiskManager) GetStats() RiskStats {
	return *r.stats
}

func (r *RiskManager) reject(ctx context.Context, op, symbol string, err error) error {
	r.stats.Rejected++
	r.logger.Info(ctx, op+": Entry rejected", map[string]interface{}{"symbol": symbol, "reason": err.Error()})
	return err
}

func countOpen(open []*domain.Position) int {
	n := 0
	for _, p := range open {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

// RoundToStep rounds value down to a multiple of step.
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	d := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	f, _ := d.Div(s).Floor().Mul(s).Float64()
	return f
}

// StepPrecision returns the number of decimals implied by step, e.g. 0.001 -> 3.
func StepPrecision(step float64) int32 {
	if step <= 0 {
		return 8
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// FormatToStep renders value rounded down to step with the step's precision.
func FormatToStep(value, step float64) string {
	if step <= 0 {
		return decimal.NewFromFloat(value).String()
	}
	d := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s).StringFixed(StepPrecision(step))
}
