package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
)

func closedTrade(symbol string, dir domain.Direction, entry, exit float64, closedAt time.Time, reason domain.CloseReason) *domain.TradeRecord {
	pos := &domain.Position{
		ID:         symbol + closedAt.Format("150405"),
		Symbol:     symbol,
		Direction:  dir,
		EntryPrice: entry,
		Leverage:   20,
		MarginUSD:  2,
		OpenedAt:   closedAt.Add(-time.Hour),
	}
	return domain.NewTradeRecord(pos, exit, reason, closedAt)
}

func sampleTrades() []*domain.TradeRecord {
	base := time.Date(2024, 1, 30, 12, 0, 0, 0, time.UTC)
	return []*domain.TradeRecord{
		// +1% move at 20x = +20%, +0.4 USD
		closedTrade("BTCUSDT", domain.Bullish, 100, 101, base, domain.CloseReasonTakeProfit),
		// -0.5% move at 20x = -10%, -0.2 USD
		closedTrade("ETHUSDT", domain.Bullish, 100, 99.5, base.Add(24*time.Hour), domain.CloseReasonStopLoss),
		// short, price falls 2% = +40%, +0.8 USD
		closedTrade("ETHUSDT", domain.Bearish, 100, 98, base.Add(48*time.Hour), domain.CloseReasonTakeProfit),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleTrades())

	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 66.6667, s.WinRate, 1e-3)
	assert.InDelta(t, 1.0, s.TotalPNLUSD, 1e-9)
	assert.InDelta(t, 0.2-0.1+0.4, s.CumulativeROI, 1e-9)
	assert.InDelta(t, 30.0, s.AvgWinPct, 1e-9)
	assert.InDelta(t, -10.0, s.AvgLossPct, 1e-9)
	assert.InDelta(t, 40.0, s.BestTradePct, 1e-9)
	assert.InDelta(t, -10.0, s.WorstTradePct, 1e-9)
}

func TestSummarize_ReplayIsIdempotent(t *testing.T) {
	trades := sampleTrades()
	assert.Equal(t, Summarize(trades), Summarize(trades))
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, domain.PerformanceSummary{}, Summarize(nil))
}

func TestSummarize_BreakEvenIsLoss(t *testing.T) {
	s := Summarize([]*domain.TradeRecord{
		closedTrade("BTCUSDT", domain.Bullish, 100, 100, time.Now(), domain.CloseReasonManual),
	})
	assert.Equal(t, 0, s.Wins)
	assert.Equal(t, 1, s.Losses)
}

func TestAnalyzePerformance(t *testing.T) {
	trades := sampleTrades()
	// Reverse input to check ordering by close time
	reversed := []*domain.TradeRecord{trades[2], trades[1], trades[0]}

	metrics := AnalyzePerformance(reversed)
	require.Len(t, metrics.EquityCurve, 3)
	assert.InDelta(t, 0.4, metrics.EquityCurve[0].Value, 1e-9)
	assert.InDelta(t, 0.2, metrics.EquityCurve[1].Value, 1e-9)
	assert.InDelta(t, 1.0, metrics.EquityCurve[2].Value, 1e-9)

	assert.InDelta(t, 0.2, metrics.MaxDrawdownUSD, 1e-9)
	assert.InDelta(t, 1.2/0.2, metrics.ProfitFactor, 1e-9)
	assert.InDelta(t, 1.0/3, metrics.Expectancy, 1e-9)
	assert.Equal(t, 1, metrics.MaxConsecutiveWins)
	assert.Equal(t, 1, metrics.MaxConsecutiveLosses)
	assert.Equal(t, time.Hour, metrics.AverageTradeDuration)
	assert.Equal(t, 2, metrics.ByReason[domain.CloseReasonTakeProfit])
	assert.InDelta(t, 0.6, metrics.BySymbol["ETHUSDT"], 1e-9)

	monthly := metrics.GetMonthlyReturns()
	require.Len(t, monthly, 2)
	assert.Equal(t, time.January, monthly[0].Month.Month())
	assert.InDelta(t, 0.2, monthly[0].Return, 1e-9)
	assert.InDelta(t, 0.8, monthly[1].Return, 1e-9)

	assert.Equal(t, trades[2], reversed[0], "input slice untouched")
}
