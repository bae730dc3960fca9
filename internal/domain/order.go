package domain

// EntryDecision is a qualified trade idea produced by the strategy.
type EntryDecision struct {
	Symbol       string
	Direction    Direction
	EntryPrice   float64
	StopLoss     float64
	TakeProfit   float64
	ATR          float64
	OrderBlock   Signal
	Confirmation Signal
	StopClamped  bool // StopLoss was moved beyond the order block edge
}

// OrderIntent is a sized entry ready for the execution gateway. It is never persisted.
type OrderIntent struct {
	Symbol        string
	Direction     Direction
	Quantity      float64
	Leverage      int
	MarginUSD     float64
	EntryPrice    float64
	StopLoss      float64
	TakeProfit    float64
	ClientOrderID string
}

// Instrument carries the exchange trading rules needed for sizing.
type Instrument struct {
	Symbol      string
	StepSize    float64 // Quantity increment
	MinQty      float64
	TickSize    float64 // Price increment
	MaxLeverage int
}
