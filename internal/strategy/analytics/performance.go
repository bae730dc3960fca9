package analytics

import (
	"math"
	"sort"
	"time"

	"smcbot/internal/domain"
)

// Summarize replays the trade log into the headline summary. A trade is a win
// when PNLUSD > 0; ROI per trade is PNLUSD over the margin committed.
func Summarize(records []*domain.TradeRecord) domain.PerformanceSummary {
	var s domain.PerformanceSummary
	var sumWinPct, sumLossPct float64

	for i, r := range records {
		s.TotalTrades++
		s.TotalPNLUSD += r.PNLUSD
		s.TotalPNLPct += r.PNLPct
		s.CumulativeROI += r.ROI()

		if r.IsWin() {
			s.Wins++
			sumWinPct += r.PNLPct
		} else {
			s.Losses++
			sumLossPct += r.PNLPct
		}

		if i == 0 || r.PNLPct > s.BestTradePct {
			s.BestTradePct = r.PNLPct
		}
		if i == 0 || r.PNLPct < s.WorstTradePct {
			s.WorstTradePct = r.PNLPct
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	if s.Wins > 0 {
		s.AvgWinPct = sumWinPct / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPct = sumLossPct / float64(s.Losses)
	}
	return s
}

// PerformanceMetrics holds the extended report derived from the trade log
type PerformanceMetrics struct {
	domain.PerformanceSummary

	ProfitFactor         float64 // Gross profit over gross loss in USD
	Expectancy           float64 // Average PNLUSD per trade
	MaxDrawdownUSD       float64 // Deepest peak-to-trough fall of cumulative PNLUSD
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	ByReason             map[domain.CloseReason]int
	BySymbol             map[string]float64 // PNLUSD per symbol
	MonthlyReturns       map[string]float64
	EquityCurve          []EquityPoint
}

// EquityPoint represents a point on the cumulative PNL curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates the extended metrics. Records are processed in
// close order; the input slice is not modified.
func AnalyzePerformance(records []*domain.TradeRecord) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		PerformanceSummary: Summarize(records),
		ByReason:           make(map[domain.CloseReason]int),
		BySymbol:           make(map[string]float64),
		MonthlyReturns:     make(map[string]float64),
		EquityCurve:        make([]EquityPoint, 0, len(records)),
	}
	if len(records) == 0 {
		return metrics
	}

	sorted := make([]*domain.TradeRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
	})

	var (
		equity, peak                float64
		grossProfit, grossLoss      float64
		consecutiveWins, consecLoss int
		totalDuration               time.Duration
	)

	for _, r := range sorted {
		if r.IsWin() {
			grossProfit += r.PNLUSD
			consecutiveWins++
			consecLoss = 0
		} else {
			grossLoss += -r.PNLUSD
			consecLoss++
			consecutiveWins = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, consecutiveWins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, consecLoss)

		equity += r.PNLUSD
		peak = math.Max(peak, equity)
		drawdown := peak - equity
		metrics.MaxDrawdownUSD = math.Max(metrics.MaxDrawdownUSD, drawdown)
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: r.ClosedAt, Value: equity, Drawdown: drawdown})

		metrics.ByReason[r.Reason]++
		metrics.BySymbol[r.Symbol] += r.PNLUSD
		metrics.MonthlyReturns[r.ClosedAt.Format("2006-01")] += r.PNLUSD
		totalDuration += r.ClosedAt.Sub(r.OpenedAt)
	}

	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	}
	metrics.Expectancy = metrics.TotalPNLUSD / float64(metrics.TotalTrades)
	metrics.AverageTradeDuration = totalDuration / time.Duration(len(sorted))
	return metrics
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
