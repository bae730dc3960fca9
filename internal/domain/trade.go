package domain

import "time"

// Outcome classifies a closed trade.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// TradeRecord is the append-only record written when a position closes.
type TradeRecord struct {
	ID         int64       // Assigned by the trade log
	PositionID string      // Position this record closes; unique in the log
	Symbol     string      // Trading symbol
	Direction  Direction   // Direction of the closed position
	EntryPrice float64     // Entry fill price
	ExitPrice  float64     // Exit fill price
	Quantity   float64     // Size of the position traded
	Leverage   int         // Leverage used for the position
	MarginUSD  float64     // Margin committed at entry
	StopLoss   float64     // Stop level at open
	TakeProfit float64     // Target level at open
	PNLUSD     float64     // Realised profit and loss in USD
	PNLPct     float64     // Leveraged percentage return on margin
	OpenedAt   time.Time   // Timestamp when the position was entered
	ClosedAt   time.Time   // Timestamp when the position was exited
	Reason     CloseReason // SL, TP or MANUAL
	Outcome    Outcome     // WIN when PNLUSD > 0
}

// NewTradeRecord snapshots a position closed at exitPrice.
func NewTradeRecord(pos *Position, exitPrice float64, reason CloseReason, closedAt time.Time) *TradeRecord {
	pnlPct, pnlUSD := pos.PNLAt(exitPrice)
	outcome := OutcomeLoss
	if pnlUSD > 0 {
		outcome = OutcomeWin
	}
	return &TradeRecord{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		Leverage:   pos.Leverage,
		MarginUSD:  pos.MarginUSD,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		PNLUSD:     pnlUSD,
		PNLPct:     pnlPct,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   closedAt,
		Reason:     reason,
		Outcome:    outcome,
	}
}

// IsWin reports whether the trade was profitable.
func (t *TradeRecord) IsWin() bool {
	return t.PNLUSD > 0
}

// ROI is the return on the margin committed to the trade.
func (t *TradeRecord) ROI() float64 {
	if t.MarginUSD == 0 {
		return 0
	}
	return t.PNLUSD / t.MarginUSD
}
