package indicators

import (
	"context"
	"fmt"
	"math"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator with Wilder's smoothing
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.Config.Period)
}

// RequiredDataPoints is period+1: every true range after the first needs a previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range value for the given klines
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	series, err := a.Series(klines)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Series returns the ATR for every kline from index period-1 onwards. Earlier
// entries are zero.
func (a *ATR) Series(klines []*domain.Kline) ([]float64, error) {
	period := a.Config.Period
	if period <= 0 {
		return nil, fmt.Errorf("%w: ATR period must be positive, got %d", ports.ErrInvalidConfig, period)
	}
	if len(klines) < period+1 {
		return nil, fmt.Errorf("%w: ATR needs %d klines, got %d", ports.ErrInsufficientData, period+1, len(klines))
	}

	trueRanges := make([]float64, len(klines))
	trueRanges[0] = klines[0].High - klines[0].Low
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		// Greatest of the bar range and the gaps from the previous close
		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)

		trueRanges[i] = math.Max(tr1, math.Max(tr2, tr3))
	}

	out := make([]float64, len(klines))

	// Seed with a simple average of the first 'period' true ranges
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)
	out[period-1] = atr

	for i := period; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
		out[i] = atr
	}

	return out, nil
}
