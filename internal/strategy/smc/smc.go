// Package smc holds the candle geometry behind Smart Money Concepts signals:
// swing points, structure breaks, order blocks, fair value gaps and liquidity pools.
// Every function is pure and works on a window ordered oldest first.
package smc

import (
	"math"

	"smcbot/internal/domain"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind int

const (
	SwingHigh SwingKind = 1
	SwingLow  SwingKind = -1
)

// Swing is a local extreme that dominates length bars on each side.
type Swing struct {
	Index int
	Kind  SwingKind
	Level float64
}

// Break is a close beyond the most recent unbroken swing.
type Break struct {
	Index      int // Breaking candle
	SwingIndex int // Swing that was broken
	Kind       domain.SignalKind
	Direction  domain.Direction
	Level      float64
}

// Block is the candle that originated the move behind a Break.
type Block struct {
	Index      int
	BreakIndex int
	Direction  domain.Direction
	Low        float64
	High       float64
}

// Gap is a three-candle imbalance.
type Gap struct {
	Index     int // Middle candle
	Direction domain.Direction
	Low       float64
	High      float64
	Filled    bool
}

// Pool is a cluster of swing levels where resting orders are assumed.
type Pool struct {
	Direction domain.Direction // Bullish for equal highs, Bearish for equal lows
	Low       float64
	High      float64
	Count     int
	LastIndex int
	Swept     bool
}

// SwingPoints finds swing highs and lows. The last length bars cannot be
// swings because their right side is not known yet. Consecutive swings of the
// same kind are collapsed into the more extreme one.
func SwingPoints(klines []*domain.Kline, length int) []Swing {
	if length <= 0 || len(klines) < 2*length+1 {
		return nil
	}

	var raw []Swing
	for i := length; i < len(klines)-length; i++ {
		if isSwingHigh(klines, i, length) {
			raw = append(raw, Swing{Index: i, Kind: SwingHigh, Level: klines[i].High})
		}
		if isSwingLow(klines, i, length) {
			raw = append(raw, Swing{Index: i, Kind: SwingLow, Level: klines[i].Low})
		}
	}

	out := make([]Swing, 0, len(raw))
	for _, s := range raw {
		if n := len(out); n > 0 && out[n-1].Kind == s.Kind {
			prev := out[n-1]
			if (s.Kind == SwingHigh && s.Level > prev.Level) || (s.Kind == SwingLow && s.Level < prev.Level) {
				out[n-1] = s
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func isSwingHigh(klines []*domain.Kline, i, length int) bool {
	h := klines[i].High
	for j := i - length; j < i; j++ {
		if klines[j].High >= h {
			return false
		}
	}
	for j := i + 1; j <= i+length; j++ {
		if klines[j].High > h {
			return false
		}
	}
	return true
}

func isSwingLow(klines []*domain.Kline, i, length int) bool {
	l := klines[i].Low
	for j := i - length; j < i; j++ {
		if klines[j].Low <= l {
			return false
		}
	}
	for j := i + 1; j <= i+length; j++ {
		if klines[j].Low < l {
			return false
		}
	}
	return true
}

// StructureBreaks walks the window and reports every close through the latest
// confirmed swing. A swing is confirmed length bars after it forms. A break in
// the direction of the prevailing trend is a BOS, against it a CHoCH. The
// first break in a window has no prior trend and counts as a BOS.
func StructureBreaks(klines []*domain.Kline, swings []Swing, length int) []Break {
	var (
		out      []Break
		lastHigh *Swing
		lastLow  *Swing
		trend    domain.Direction
		next     int
	)

	for i, k := range klines {
		for next < len(swings) && swings[next].Index+length <= i {
			s := swings[next]
			if s.Kind == SwingHigh {
				lastHigh = &s
			} else {
				lastLow = &s
			}
			next++
		}

		switch {
		case lastHigh != nil && k.Close > lastHigh.Level:
			out = append(out, Break{
				Index:      i,
				SwingIndex: lastHigh.Index,
				Kind:       breakKind(trend, domain.Bullish),
				Direction:  domain.Bullish,
				Level:      lastHigh.Level,
			})
			trend = domain.Bullish
			lastHigh = nil
		case lastLow != nil && k.Close < lastLow.Level:
			out = append(out, Break{
				Index:      i,
				SwingIndex: lastLow.Index,
				Kind:       breakKind(trend, domain.Bearish),
				Direction:  domain.Bearish,
				Level:      lastLow.Level,
			})
			trend = domain.Bearish
			lastLow = nil
		}
	}
	return out
}

func breakKind(trend, dir domain.Direction) domain.SignalKind {
	if trend != "" && trend != dir {
		return domain.KindCHoCH
	}
	return domain.KindBOS
}

// OrderBlockFor locates the order block behind a break: for a bullish break the
// candle with the lowest low between the swing and the break, for a bearish
// break the candle with the highest high. Ties resolve to the latest candle.
func OrderBlockFor(klines []*domain.Kline, b Break) (Block, bool) {
	if b.SwingIndex < 0 || b.Index > len(klines)-1 || b.SwingIndex >= b.Index {
		return Block{}, false
	}

	best := b.SwingIndex
	for i := b.SwingIndex; i < b.Index; i++ {
		if b.Direction == domain.Bullish && klines[i].Low <= klines[best].Low {
			best = i
		}
		if b.Direction == domain.Bearish && klines[i].High >= klines[best].High {
			best = i
		}
	}
	return Block{
		Index:      best,
		BreakIndex: b.Index,
		Direction:  b.Direction,
		Low:        klines[best].Low,
		High:       klines[best].High,
	}, true
}

// FairValueGaps finds imbalances where the wicks of candles i-1 and i+1 do not
// overlap and candle i moved in the gap direction. A gap is filled once a later
// candle trades through its far side.
func FairValueGaps(klines []*domain.Kline) []Gap {
	var out []Gap
	for i := 1; i < len(klines)-1; i++ {
		prev, cur, next := klines[i-1], klines[i], klines[i+1]
		var g Gap
		switch {
		case next.Low > prev.High && cur.Close > cur.Open:
			g = Gap{Index: i, Direction: domain.Bullish, Low: prev.High, High: next.Low}
		case next.High < prev.Low && cur.Close < cur.Open:
			g = Gap{Index: i, Direction: domain.Bearish, Low: next.High, High: prev.Low}
		default:
			continue
		}
		for j := i + 2; j < len(klines); j++ {
			if (g.Direction == domain.Bullish && klines[j].Low <= g.Low) ||
				(g.Direction == domain.Bearish && klines[j].High >= g.High) {
				g.Filled = true
				break
			}
		}
		out = append(out, g)
	}
	return out
}

// LiquidityPools groups swings of the same kind whose levels lie within
// rangePct of the window's high-low range. Only clusters of two or more count.
// A pool is swept once a later candle trades beyond it.
func LiquidityPools(klines []*domain.Kline, swings []Swing, rangePct float64) []Pool {
	if len(klines) == 0 || len(swings) < 2 {
		return nil
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, k := range klines {
		hi = math.Max(hi, k.High)
		lo = math.Min(lo, k.Low)
	}
	tol := (hi - lo) * rangePct

	used := make([]bool, len(swings))
	var out []Pool
	for i, s := range swings {
		if used[i] {
			continue
		}
		p := Pool{Low: s.Level, High: s.Level, Count: 1, LastIndex: s.Index}
		for j := i + 1; j < len(swings); j++ {
			o := swings[j]
			if used[j] || o.Kind != s.Kind || math.Abs(o.Level-s.Level) > tol {
				continue
			}
			used[j] = true
			p.Count++
			p.Low = math.Min(p.Low, o.Level)
			p.High = math.Max(p.High, o.Level)
			p.LastIndex = o.Index
		}
		if p.Count < 2 {
			continue
		}
		p.Direction = domain.Bullish
		if s.Kind == SwingLow {
			p.Direction = domain.Bearish
		}
		for j := p.LastIndex + 1; j < len(klines); j++ {
			if (s.Kind == SwingHigh && klines[j].High > p.High) ||
				(s.Kind == SwingLow && klines[j].Low < p.Low) {
				p.Swept = true
				break
			}
		}
		out = append(out, p)
	}
	return out
}
