package strategy

import (
	"context"
	"fmt"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/strategy/indicators"
	"smcbot/internal/strategy/smc"
)

// DetectorConfig holds the pattern detection parameters.
type DetectorConfig struct {
	SwingLength       int     // Bars on each side of a swing point, e.g. 10
	OBLookback        int     // Only blocks formed within this many bars are admitted, e.g. 50
	OBMaxAgeBars      int     // Expire tested-or-not blocks after this many bars; 0 disables
	VolumePeriod      int     // Volume average used to rate block strength
	LiquidityRangePct float64 // Clustering tolerance as a fraction of the window range
}

// DefaultDetectorConfig returns the stock detection parameters.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SwingLength:       10,
		OBLookback:        50,
		VolumePeriod:      20,
		LiquidityRangePct: 0.01,
	}
}

// Detector derives signals for a single symbol. Order blocks survive between
// calls until a candle closes through them or they age out.
type Detector struct {
	symbol   string
	cfg      DetectorConfig
	logger   ports.Logger
	arena    *blockArena
	lastSeen time.Time
}

// NewDetector creates a detector for symbol.
func NewDetector(symbol string, cfg DetectorConfig, logger ports.Logger) (*Detector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for detector")
	}
	if cfg.SwingLength <= 0 || cfg.OBLookback <= 0 {
		return nil, fmt.Errorf("%w: swing length and order block lookback must be positive", ports.ErrInvalidConfig)
	}
	if cfg.OBMaxAgeBars < 0 {
		return nil, fmt.Errorf("%w: order block max age cannot be negative", ports.ErrInvalidConfig)
	}
	if cfg.VolumePeriod <= 0 {
		cfg.VolumePeriod = 20
	}
	return &Detector{symbol: symbol, cfg: cfg, logger: logger, arena: newBlockArena()}, nil
}

// RequiredDataPoints is the shortest window in which a swing can be confirmed.
func (d *Detector) RequiredDataPoints() int {
	return 2*d.cfg.SwingLength + 1
}

// ActiveBlocks returns the number of tracked order blocks.
func (d *Detector) ActiveBlocks() int {
	return d.arena.len()
}

// Detect runs one detection pass over klines, which must be ordered oldest first.
func (d *Detector) Detect(ctx context.Context, klines []*domain.Kline) (domain.SignalSet, error) {
	op := "Detect"
	set := domain.SignalSet{Symbol: d.symbol, WindowLen: len(klines)}
	if len(klines) < d.RequiredDataPoints() {
		return set, fmt.Errorf("%w: %s needs %d klines, got %d", ports.ErrInsufficientData, d.symbol, d.RequiredDataPoints(), len(klines))
	}

	n := len(klines)
	newest := klines[n-1].OpenTime
	position := make(map[int64]int, n)
	for i, k := range klines {
		position[k.OpenTime.UnixMilli()] = i
	}

	swings := smc.SwingPoints(klines, d.cfg.SwingLength)
	breaks := smc.StructureBreaks(klines, swings, d.cfg.SwingLength)
	avgVolume := d.averageVolume(ctx, klines)

	for _, b := range breaks {
		sig := d.structureSignal(klines, b)
		if d.isFresh(klines[b.Index].OpenTime, newest) {
			set.Structure = append(set.Structure, sig)
		}
		latest := sig
		set.LatestStructure = &latest

		blk, ok := smc.OrderBlockFor(klines, b)
		if !ok || blk.Index < n-d.cfg.OBLookback {
			continue
		}
		ob := d.blockSignal(klines, blk, avgVolume)
		if d.arena.admit(ob, klines[blk.BreakIndex].OpenTime) {
			d.logger.Debug(ctx, op+": Order block admitted", map[string]interface{}{
				"symbol": d.symbol, "direction": ob.Direction, "low": ob.Low, "high": ob.High,
			})
		}
	}

	d.updateBlocks(ctx, klines)
	d.arena.prune(klines[0].OpenTime)

	for _, ob := range d.arena.blocks() {
		ob.Bar = -1
		if i, ok := position[ob.Timestamp.UnixMilli()]; ok {
			ob.Bar = i
		}
		set.OrderBlocks = append(set.OrderBlocks, ob)
	}

	for _, g := range smc.FairValueGaps(klines) {
		if g.Filled {
			continue
		}
		set.FairValueGap = append(set.FairValueGap, domain.Signal{
			Kind:      domain.KindFairValueGap,
			Symbol:    d.symbol,
			Timestamp: klines[g.Index].OpenTime,
			Direction: g.Direction,
			Low:       g.Low,
			High:      g.High,
			Strength:  relativeSize(g.Low, g.High, klines[g.Index].Close),
			Bar:       g.Index,
		})
	}

	for _, p := range smc.LiquidityPools(klines, swings, d.cfg.LiquidityRangePct) {
		if p.Swept {
			continue
		}
		set.Liquidity = append(set.Liquidity, domain.Signal{
			Kind:      domain.KindLiquidity,
			Symbol:    d.symbol,
			Timestamp: klines[p.LastIndex].OpenTime,
			Direction: p.Direction,
			Low:       p.Low,
			High:      p.High,
			Strength:  float64(p.Count),
			Bar:       p.LastIndex,
		})
	}

	d.lastSeen = newest
	d.logger.Debug(ctx, op+": Detection pass complete", map[string]interface{}{
		"symbol":       d.symbol,
		"orderBlocks":  len(set.OrderBlocks),
		"fvgs":         len(set.FairValueGap),
		"structure":    len(set.Structure),
		"liquidity":    len(set.Liquidity),
		"windowLength": n,
	})
	return set, nil
}

// isFresh reports whether a break on the candle at t was confirmed by this pass.
// On the very first pass only the newest candle counts.
func (d *Detector) isFresh(t, newest time.Time) bool {
	if d.lastSeen.IsZero() {
		return t.Equal(newest)
	}
	return t.After(d.lastSeen)
}

// updateBlocks applies every candle not yet seen by each block: an adverse close
// through the band invalidates it, a trade back into the band marks it tested.
func (d *Detector) updateBlocks(ctx context.Context, klines []*domain.Kline) {
	newest := klines[len(klines)-1].OpenTime
	for i, b := range d.arena.slots {
		if b == nil {
			continue
		}
		reason := ""
		for _, k := range klines {
			if !k.OpenTime.After(b.checkedTo) {
				continue
			}
			b.barsAged++
			if b.signal.Direction == domain.Bullish && k.Close < b.signal.Low ||
				b.signal.Direction == domain.Bearish && k.Close > b.signal.High {
				reason = "invalidated"
				break
			}
			if b.signal.Direction == domain.Bullish && k.Low <= b.signal.High ||
				b.signal.Direction == domain.Bearish && k.High >= b.signal.Low {
				b.signal.Tested = true
			}
			if d.cfg.OBMaxAgeBars > 0 && b.barsAged > d.cfg.OBMaxAgeBars {
				reason = "expired"
				break
			}
		}
		if reason != "" {
			d.logger.Debug(ctx, "Detect: Order block retired", map[string]interface{}{
				"symbol": d.symbol, "direction": b.signal.Direction, "low": b.signal.Low,
				"high": b.signal.High, "reason": reason,
			})
			d.arena.retire(i)
			continue
		}
		b.checkedTo = newest
	}
}

func (d *Detector) structureSignal(klines []*domain.Kline, b smc.Break) domain.Signal {
	k := klines[b.Index]
	low, high := b.Level, k.Close
	if low > high {
		low, high = high, low
	}
	return domain.Signal{
		Kind:      b.Kind,
		Symbol:    d.symbol,
		Timestamp: k.OpenTime,
		Direction: b.Direction,
		Low:       low,
		High:      high,
		Strength:  relativeSize(low, high, b.Level),
		Bar:       b.Index,
	}
}

func (d *Detector) blockSignal(klines []*domain.Kline, blk smc.Block, avgVolume float64) domain.Signal {
	k := klines[blk.Index]
	strength := 1.0
	if avgVolume > 0 {
		strength = k.Volume / avgVolume
	}
	return domain.Signal{
		Kind:      domain.KindOrderBlock,
		Symbol:    d.symbol,
		Timestamp: k.OpenTime,
		Direction: blk.Direction,
		Low:       blk.Low,
		High:      blk.High,
		Strength:  strength,
		Bar:       blk.Index,
	}
}

func (d *Detector) averageVolume(ctx context.Context, klines []*domain.Kline) float64 {
	period := d.cfg.VolumePeriod
	if period > len(klines) {
		period = len(klines)
	}
	ma := indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: period},
		Type:            indicators.SimpleMovingAverage,
		Source:          indicators.SourceVolume,
	})
	v, err := ma.Calculate(ctx, klines)
	if err != nil {
		return 0
	}
	return v
}

func relativeSize(low, high, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return (high - low) / ref
}
