package domain

import "time"

// Position represents a trading position held by the bot.
type Position struct {
	ID              string         // ULID assigned when the position is opened
	Symbol          string         // Trading symbol (e.g., "ETHUSDT")
	Direction       Direction      // Bullish = long, Bearish = short
	EntryPrice      float64        // Fill price of the entry order
	Quantity        float64        // Size of the position in base asset
	Leverage        int            // Leverage used for the position
	MarginUSD       float64        // Margin committed to the position
	StopLoss        float64        // Fixed at open, never moved
	TakeProfit      float64        // Fixed at open, never moved
	OpenedAt        time.Time      // Timestamp when the position was entered
	Status          PositionStatus // OPEN or one of the CLOSED_* states
	ExchangeOrderID string         // Exchange order id of the entry fill ("" in dry-run)
	DryRun          bool           // Opened by the paper gateway
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsLong reports whether the position profits from rising prices.
func (p *Position) IsLong() bool {
	return p.Direction == Bullish
}

// ExitTriggered evaluates the stop-loss and take-profit levels against a price.
// Stop-loss is checked first, so a price that satisfies both resolves to SL.
func (p *Position) ExitTriggered(price float64) (CloseReason, bool) {
	if p.IsLong() {
		if price <= p.StopLoss {
			return CloseReasonStopLoss, true
		}
		if price >= p.TakeProfit {
			return CloseReasonTakeProfit, true
		}
		return "", false
	}
	if price >= p.StopLoss {
		return CloseReasonStopLoss, true
	}
	if price <= p.TakeProfit {
		return CloseReasonTakeProfit, true
	}
	return "", false
}

// PNLAt computes the leveraged percentage and USD profit if the position were closed at exitPrice.
func (p *Position) PNLAt(exitPrice float64) (pnlPct, pnlUSD float64) {
	if p.EntryPrice == 0 {
		return 0, 0
	}
	move := (exitPrice - p.EntryPrice) / p.EntryPrice
	if !p.IsLong() {
		move = -move
	}
	pnlPct = move * 100 * float64(p.Leverage)
	pnlUSD = p.MarginUSD * pnlPct / 100
	return pnlPct, pnlUSD
}
