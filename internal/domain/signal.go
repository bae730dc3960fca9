package domain

import (
	"fmt"
	"time"
)

// SignalKind tags the variant carried by a Signal.
type SignalKind string

const (
	KindOrderBlock   SignalKind = "ORDER_BLOCK"
	KindFairValueGap SignalKind = "FVG"
	KindBOS          SignalKind = "BOS"
	KindCHoCH        SignalKind = "CHOCH"
	KindLiquidity    SignalKind = "LIQUIDITY"
)

// Signal is a detected structural pattern. All kinds share the same header;
// the order-block fields are only meaningful for KindOrderBlock.
type Signal struct {
	Kind      SignalKind
	Symbol    string
	Timestamp time.Time // Open time of the candle that formed or confirmed the signal
	Direction Direction
	Low       float64
	High      float64
	Strength  float64 // Relative size of the pattern, higher is stronger

	// Order block state
	Tested bool
	Bar    int // Index of the forming candle in the window it was detected in
}

// Contains reports whether price lies inside the signal band.
func (s Signal) Contains(price float64) bool {
	return price >= s.Low && price <= s.High
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s %s [%.8g, %.8g] @ %s", s.Symbol, s.Kind, s.Direction, s.Low, s.High, s.Timestamp.Format(time.RFC3339))
}

// SignalSet groups the signals reported by one detection pass.
type SignalSet struct {
	Symbol       string
	OrderBlocks  []Signal
	FairValueGap []Signal
	Structure    []Signal // BOS/CHoCH confirmed on this pass only
	Liquidity    []Signal

	// LatestStructure is the most recent BOS/CHoCH anywhere in the window, which
	// may have been confirmed on an earlier pass.
	LatestStructure *Signal
	WindowLen       int
}

// BarsAgo returns how many candles before the newest one the signal formed,
// or -1 when it lies outside the window.
func (s SignalSet) BarsAgo(sig Signal) int {
	if sig.Bar < 0 || sig.Bar >= s.WindowLen {
		return -1
	}
	return s.WindowLen - 1 - sig.Bar
}

