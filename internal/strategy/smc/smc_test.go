package smc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
)

func candles(ohlc ...[4]float64) []*domain.Kline {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, len(ohlc))
	for i, v := range ohlc {
		out[i] = &domain.Kline{
			Symbol:   "BTCUSDT",
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     v[0],
			High:     v[1],
			Low:      v[2],
			Close:    v[3],
			Volume:   100,
		}
	}
	return out
}

// Rally into a swing high, pullback to a swing low, bullish break, then a
// close back under the swing low.
func structureWindow() []*domain.Kline {
	return candles(
		[4]float64{9.2, 10, 9, 9.5},
		[4]float64{10.2, 11, 10, 10.5},
		[4]float64{12.5, 14, 12, 13},
		[4]float64{12.8, 13, 11, 11.5},
		[4]float64{11.5, 12, 8, 9},
		[4]float64{9.2, 11, 9, 10.5},
		[4]float64{10.5, 13, 10, 12.5},
		[4]float64{12.5, 15, 12, 14.8},
		[4]float64{14.6, 14, 12, 13},
		[4]float64{12.8, 12, 7, 7.5},
	)
}

func TestSwingPoints(t *testing.T) {
	swings := SwingPoints(structureWindow(), 2)
	require.Len(t, swings, 3)
	assert.Equal(t, Swing{Index: 2, Kind: SwingHigh, Level: 14}, swings[0])
	assert.Equal(t, Swing{Index: 4, Kind: SwingLow, Level: 8}, swings[1])
	assert.Equal(t, Swing{Index: 7, Kind: SwingHigh, Level: 15}, swings[2])

	assert.Nil(t, SwingPoints(structureWindow()[:4], 2), "window shorter than 2*length+1")
	assert.Nil(t, SwingPoints(structureWindow(), 0))
}

func TestSwingPoints_CollapsesConsecutiveSameKind(t *testing.T) {
	klines := candles(
		[4]float64{1, 2, 0.5, 1},
		[4]float64{1, 5, 0.9, 1},
		[4]float64{1, 2, 0.8, 1},
		[4]float64{1, 6, 0.7, 1},
		[4]float64{1, 2, 0.6, 1},
		[4]float64{1, 2, 0.5, 1},
	)
	swings := SwingPoints(klines, 1)
	var highs []Swing
	for _, s := range swings {
		if s.Kind == SwingHigh {
			highs = append(highs, s)
		}
	}
	require.Len(t, highs, 1)
	assert.Equal(t, 6.0, highs[0].Level)
}

func TestStructureBreaks(t *testing.T) {
	klines := structureWindow()
	breaks := StructureBreaks(klines, SwingPoints(klines, 2), 2)
	require.Len(t, breaks, 2)

	assert.Equal(t, Break{Index: 7, SwingIndex: 2, Kind: domain.KindBOS, Direction: domain.Bullish, Level: 14}, breaks[0])
	assert.Equal(t, Break{Index: 9, SwingIndex: 4, Kind: domain.KindCHoCH, Direction: domain.Bearish, Level: 8}, breaks[1])
}

func TestOrderBlockFor(t *testing.T) {
	klines := structureWindow()
	breaks := StructureBreaks(klines, SwingPoints(klines, 2), 2)
	require.Len(t, breaks, 2)

	bull, ok := OrderBlockFor(klines, breaks[0])
	require.True(t, ok)
	assert.Equal(t, Block{Index: 4, BreakIndex: 7, Direction: domain.Bullish, Low: 8, High: 12}, bull)

	bear, ok := OrderBlockFor(klines, breaks[1])
	require.True(t, ok)
	assert.Equal(t, Block{Index: 7, BreakIndex: 9, Direction: domain.Bearish, Low: 12, High: 15}, bear)

	_, ok = OrderBlockFor(klines, Break{Index: 3, SwingIndex: 3})
	assert.False(t, ok)
}

func TestFairValueGaps(t *testing.T) {
	klines := candles(
		[4]float64{10, 11, 9, 10.5},
		[4]float64{10.5, 14, 10.4, 13.8},
		[4]float64{13.8, 15, 12, 14.5},
		[4]float64{14.5, 15, 13, 14},
	)

	gaps := FairValueGaps(klines)
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{Index: 1, Direction: domain.Bullish, Low: 11, High: 12}, gaps[0])

	filled := append(klines, candles([4]float64{14, 14.2, 10.9, 11.5})...)
	gaps = FairValueGaps(filled)
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Filled)
}

func TestFairValueGaps_Bearish(t *testing.T) {
	klines := candles(
		[4]float64{20, 21, 19, 19.5},
		[4]float64{19.5, 19.6, 16, 16.2},
		[4]float64{16.2, 18, 15, 15.5},
	)
	gaps := FairValueGaps(klines)
	require.Len(t, gaps, 1)
	assert.Equal(t, domain.Bearish, gaps[0].Direction)
	assert.Equal(t, 18.0, gaps[0].Low)
	assert.Equal(t, 19.0, gaps[0].High)
	assert.False(t, gaps[0].Filled)
}

func TestLiquidityPools(t *testing.T) {
	flat := make([][4]float64, 8)
	for i := range flat {
		flat[i] = [4]float64{97, 99, 95, 97}
	}
	flat[0][1] = 101
	flat[1][2] = 89
	klines := candles(flat...)

	swings := []Swing{
		{Index: 2, Kind: SwingHigh, Level: 100},
		{Index: 4, Kind: SwingLow, Level: 90},
		{Index: 6, Kind: SwingHigh, Level: 100.2},
	}

	pools := LiquidityPools(klines, swings, 0.05)
	require.Len(t, pools, 1)
	assert.Equal(t, Pool{Direction: domain.Bullish, Low: 100, High: 100.2, Count: 2, LastIndex: 6}, pools[0])

	klines[7].High = 100.5
	pools = LiquidityPools(klines, swings, 0.05)
	require.Len(t, pools, 1)
	assert.True(t, pools[0].Swept)

	assert.Empty(t, LiquidityPools(klines, swings, 0.001), "levels too far apart to cluster")
}
