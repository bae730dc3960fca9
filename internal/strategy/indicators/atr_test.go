package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

func constantRangeKlines(n int, rng float64) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, n)
	for i := range out {
		out[i] = &domain.Kline{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     100,
			High:     100 + rng/2,
			Low:      100 - rng/2,
			Close:    100,
		}
	}
	return out
}

func TestATR_Calculate(t *testing.T) {
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 14}})

	t.Run("constant range converges to range", func(t *testing.T) {
		value, err := atr.Calculate(context.Background(), constantRangeKlines(30, 4))
		require.NoError(t, err)
		assert.InDelta(t, 4.0, value, 1e-9)
	})

	t.Run("gap widens true range", func(t *testing.T) {
		klines := constantRangeKlines(15, 2)
		// Last bar gaps up: |high - prevClose| = 11
		klines[14].Low = 109
		klines[14].High = 111
		klines[14].Close = 110
		value, err := atr.Calculate(context.Background(), klines)
		require.NoError(t, err)
		assert.InDelta(t, (2.0*13+11)/14, value, 1e-9)
	})

	t.Run("insufficient data", func(t *testing.T) {
		_, err := atr.Calculate(context.Background(), constantRangeKlines(14, 4))
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInsufficientData)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := NewATR(ATRConfig{}).Calculate(context.Background(), constantRangeKlines(10, 4))
		assert.ErrorIs(t, err, ports.ErrInvalidConfig)
	})
}

func TestATR_Series(t *testing.T) {
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 3}})
	series, err := atr.Series(constantRangeKlines(6, 2))
	require.NoError(t, err)
	require.Len(t, series, 6)
	assert.Zero(t, series[0])
	assert.Zero(t, series[1])
	for i := 2; i < 6; i++ {
		assert.InDelta(t, 2.0, series[i], 1e-9)
	}
	assert.Equal(t, 4, atr.RequiredDataPoints())
	assert.Equal(t, "ATR(3)", atr.Name())
}
