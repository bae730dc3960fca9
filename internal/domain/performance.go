package domain

// PerformanceSummary aggregates the full trade log.
type PerformanceSummary struct {
	TotalTrades   int
	Wins          int
	Losses        int
	WinRate       float64 // Percentage of trades with PNLUSD > 0
	CumulativeROI float64 // Sum of per-trade PNLUSD / margin
	TotalPNLUSD   float64
	TotalPNLPct   float64
	AvgWinPct     float64
	AvgLossPct    float64
	BestTradePct  float64
	WorstTradePct float64
	OpenPositions int
}
