package strategy

import (
	"context"
	"fmt"
	"math"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/strategy/indicators"
)

// Config holds parameters for the entry decision engine.
type Config struct {
	ATRPeriod            int     // e.g., 14
	TPATRMult            float64 // e.g., 2.0
	SLATRMult            float64 // e.g., 1.5
	OBBufferATRMult      float64 // Distance beyond the order block edge for a clamped stop, e.g., 0.2
	ConfirmationLookback int     // Max bars since the confirming BOS/CHoCH, e.g., 30
	ZoneTolerance        float64 // Fraction of the block height that still counts as "at" the block, e.g., 0.2
	PriceTolerance       float64 // Fraction of price that still counts as "at" the block, e.g., 0.005
	RequireFVGConfluence bool
	FVGTolerance         float64 // Fraction of price around an open gap, e.g., 0.01
	EnforceMinDistance   bool
	MinTPPct             float64 // e.g., 0.01
	MinSLPct             float64 // e.g., 0.005
}

// DefaultConfig returns the stock entry parameters.
func DefaultConfig() Config {
	return Config{
		ATRPeriod:            14,
		TPATRMult:            2.0,
		SLATRMult:            1.5,
		OBBufferATRMult:      0.2,
		ConfirmationLookback: 30,
		ZoneTolerance:        0.2,
		PriceTolerance:       0.005,
		FVGTolerance:         0.01,
		MinTPPct:             0.01,
		MinSLPct:             0.005,
	}
}

// Strategy turns a signal set into at most one entry decision.
type Strategy struct {
	cfg    Config
	atr    *indicators.ATR
	logger ports.Logger
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("%w: ATR period must be positive", ports.ErrInvalidConfig)
	}
	if cfg.TPATRMult <= 0 || cfg.SLATRMult <= 0 || cfg.OBBufferATRMult <= 0 {
		return nil, fmt.Errorf("%w: ATR multipliers must be positive", ports.ErrInvalidConfig)
	}
	if cfg.ConfirmationLookback < 0 {
		return nil, fmt.Errorf("%w: confirmation lookback cannot be negative", ports.ErrInvalidConfig)
	}
	return &Strategy{
		cfg:    cfg,
		atr:    indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod}}),
		logger: logger,
	}, nil
}

// RequiredDataPoints returns the minimum number of klines needed for a decision.
func (s *Strategy) RequiredDataPoints() int {
	return s.atr.RequiredDataPoints()
}

// Decide applies the order block plus structure confirmation gate. The latest
// BOS/CHoCH sets the direction; it must be no older than ConfirmationLookback
// bars and a tested block of that direction must sit at the current price.
// Returns nil, nil when nothing qualifies and ErrInsufficientData when ATR
// cannot be computed.
func (s *Strategy) Decide(ctx context.Context, klines []*domain.Kline, signals domain.SignalSet) (*domain.EntryDecision, error) {
	op := "Decide"
	atr, err := s.atr.Calculate(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("%s failed for %s: %w", op, signals.Symbol, err)
	}
	price := klines[len(klines)-1].Close

	conf := signals.LatestStructure
	if conf == nil {
		s.logger.Debug(ctx, op+": No structure confirmation", map[string]interface{}{"symbol": signals.Symbol})
		return nil, nil
	}
	age := signals.BarsAgo(*conf)
	if age < 0 || age > s.cfg.ConfirmationLookback {
		s.logger.Debug(ctx, op+": Structure confirmation too old", map[string]interface{}{
			"symbol": signals.Symbol, "barsAgo": age,
		})
		return nil, nil
	}

	ob, ok := s.blockAtPrice(price, conf.Direction, signals.OrderBlocks)
	if !ok {
		s.logger.Debug(ctx, op+": Price not at a tested order block", map[string]interface{}{
			"symbol": signals.Symbol, "direction": conf.Direction, "price": price,
			"orderBlocks": len(signals.OrderBlocks),
		})
		return nil, nil
	}

	if s.cfg.RequireFVGConfluence && !s.hasGapConfluence(price, conf.Direction, signals.FairValueGap) {
		s.logger.Debug(ctx, op+": No FVG confluence", map[string]interface{}{"symbol": signals.Symbol})
		return nil, nil
	}

	tp, sl, clamped := s.Levels(price, atr, conf.Direction, ob)
	decision := &domain.EntryDecision{
		Symbol:       signals.Symbol,
		Direction:    conf.Direction,
		EntryPrice:   price,
		StopLoss:     sl,
		TakeProfit:   tp,
		ATR:          atr,
		OrderBlock:   ob,
		Confirmation: *conf,
		StopClamped:  clamped,
	}
	s.logger.Info(ctx, op+": Entry qualified", map[string]interface{}{
		"symbol":    decision.Symbol,
		"side":      decision.Direction.Label(),
		"entry":     price,
		"stopLoss":  sl,
		"target":    tp,
		"atr":       atr,
		"structure": conf.Kind,
		"clamped":   clamped,
	})
	return decision, nil
}

// Levels computes take-profit and stop-loss for an entry. The stop is pushed
// past the block's far edge by OBBufferATRMult*ATR whenever the ATR stop would
// land inside the block.
func (s *Strategy) Levels(entry, atr float64, dir domain.Direction, ob domain.Signal) (tp, sl float64, clamped bool) {
	tpDist := atr * s.cfg.TPATRMult
	slDist := atr * s.cfg.SLATRMult
	if s.cfg.EnforceMinDistance {
		tpDist = math.Max(tpDist, entry*s.cfg.MinTPPct)
		slDist = math.Max(slDist, entry*s.cfg.MinSLPct)
	}
	buffer := atr * s.cfg.OBBufferATRMult

	if dir == domain.Bullish {
		tp = entry + tpDist
		sl = entry - slDist
		if sl >= ob.Low && sl <= ob.High {
			sl = ob.Low - buffer
			clamped = true
		}
		return tp, sl, clamped
	}

	tp = entry - tpDist
	sl = entry + slDist
	if sl >= ob.Low && sl <= ob.High {
		sl = ob.High + buffer
		clamped = true
	}
	return tp, sl, clamped
}

// blockAtPrice picks the strongest tested block of dir whose band, widened by
// max(ZoneTolerance of its height, PriceTolerance of price), contains price.
// Ties go to the most recent block.
func (s *Strategy) blockAtPrice(price float64, dir domain.Direction, blocks []domain.Signal) (domain.Signal, bool) {
	var (
		best  domain.Signal
		found bool
	)
	for _, ob := range blocks {
		if ob.Kind != domain.KindOrderBlock || ob.Direction != dir || !ob.Tested {
			continue
		}
		tol := math.Max((ob.High-ob.Low)*s.cfg.ZoneTolerance, price*s.cfg.PriceTolerance)
		if price < ob.Low-tol || price > ob.High+tol {
			continue
		}
		if !found || ob.Strength > best.Strength ||
			(ob.Strength == best.Strength && ob.Timestamp.After(best.Timestamp)) {
			best = ob
			found = true
		}
	}
	return best, found
}

func (s *Strategy) hasGapConfluence(price float64, dir domain.Direction, gaps []domain.Signal) bool {
	tol := price * s.cfg.FVGTolerance
	for _, g := range gaps {
		if g.Direction == dir && price >= g.Low-tol && price <= g.High+tol {
			return true
		}
	}
	return false
}
