package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Direction is the bias of a signal or a position.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// EntrySide is the order side that opens a position in this direction.
func (d Direction) EntrySide() OrderSide {
	if d == Bullish {
		return Buy
	}
	return Sell
}

// ExitSide is the order side that closes a position in this direction.
func (d Direction) ExitSide() OrderSide {
	if d == Bullish {
		return Sell
	}
	return Buy
}

// Label returns LONG or SHORT for logs and reports.
func (d Direction) Label() string {
	if d == Bullish {
		return "LONG"
	}
	return "SHORT"
}

// PositionStatus represents the lifecycle state of a trading position.
type PositionStatus string

const (
	StatusOpen         PositionStatus = "OPEN"
	StatusClosedTP     PositionStatus = "CLOSED_TP"
	StatusClosedSL     PositionStatus = "CLOSED_SL"
	StatusClosedManual PositionStatus = "CLOSED_MANUAL"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonManual     CloseReason = "MANUAL"
)

// Status maps a close reason to the terminal position status it produces.
func (r CloseReason) Status() PositionStatus {
	switch r {
	case CloseReasonStopLoss:
		return StatusClosedSL
	case CloseReasonTakeProfit:
		return StatusClosedTP
	default:
		return StatusClosedManual
	}
}
