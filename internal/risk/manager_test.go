package risk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func defaultConfig() RiskConfig {
	return RiskConfig{
		MarginPerTrade:   2.0,
		Leverage:         20,
		MaxLeverage:      20,
		MaxOpenPositions: 3,
		BalanceCooldown:  time.Hour,
	}
}

func decision(symbol string, price float64) *domain.EntryDecision {
	return &domain.EntryDecision{
		Symbol:     symbol,
		Direction:  domain.Bullish,
		EntryPrice: price,
		StopLoss:   price * 0.99,
		TakeProfit: price * 1.02,
	}
}

func openPosition(symbol string) *domain.Position {
	return &domain.Position{ID: "pos-" + symbol, Symbol: symbol, Status: domain.StatusOpen, MarginUSD: 2, Quantity: 1, EntryPrice: 10}
}

var ethInstrument = &domain.Instrument{Symbol: "ETHUSDT", StepSize: 0.001, MinQty: 0.001}

func TestNewRiskManager_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RiskConfig)
	}{
		{name: "zero margin", mutate: func(c *RiskConfig) { c.MarginPerTrade = 0 }},
		{name: "negative leverage", mutate: func(c *RiskConfig) { c.Leverage = -1 }},
		{name: "zero max positions", mutate: func(c *RiskConfig) { c.MaxOpenPositions = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			_, err := NewRiskManager(cfg, nopLogger{})
			assert.ErrorIs(t, err, ports.ErrInvalidConfig)
		})
	}

	_, err := NewRiskManager(defaultConfig(), nil)
	assert.Error(t, err)
}

func TestSize(t *testing.T) {
	ctx := context.Background()
	manager, err := NewRiskManager(defaultConfig(), nopLogger{})
	require.NoError(t, err)

	intent, err := manager.Size(ctx, decision("ETHUSDT", 2500), nil, ethInstrument)
	require.NoError(t, err)
	assert.InDelta(t, 0.016, intent.Quantity, 1e-12, "2 USD * 20 / 2500")
	assert.Equal(t, 20, intent.Leverage)
	assert.Equal(t, 2.0, intent.MarginUSD)
	assert.Equal(t, domain.Bullish, intent.Direction)
	assert.NotEmpty(t, intent.ClientOrderID)
	assert.Equal(t, 1, manager.GetStats().Accepted)
}

func TestSize_RoundsDownToStep(t *testing.T) {
	manager, err := NewRiskManager(defaultConfig(), nopLogger{})
	require.NoError(t, err)

	// 40 / 2999 = 0.013337...
	intent, err := manager.Size(context.Background(), decision("ETHUSDT", 2999), nil, ethInstrument)
	require.NoError(t, err)
	assert.InDelta(t, 0.013, intent.Quantity, 1e-12)
}

func TestSize_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("capacity exceeded", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.MaxOpenPositions = 1
		manager, err := NewRiskManager(cfg, nopLogger{})
		require.NoError(t, err)

		_, err = manager.Size(ctx, decision("ETHUSDT", 2500), []*domain.Position{openPosition("BTCUSDT")}, ethInstrument)
		assert.ErrorIs(t, err, ports.ErrCapacityExceeded)
		assert.Equal(t, 1, manager.GetStats().Rejected)
	})

	t.Run("duplicate symbol", func(t *testing.T) {
		manager, err := NewRiskManager(defaultConfig(), nopLogger{})
		require.NoError(t, err)

		_, err = manager.Size(ctx, decision("ETHUSDT", 2500), []*domain.Position{openPosition("ETHUSDT")}, ethInstrument)
		assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
	})

	t.Run("closed positions do not count", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.MaxOpenPositions = 1
		manager, err := NewRiskManager(cfg, nopLogger{})
		require.NoError(t, err)

		closed := openPosition("ETHUSDT")
		closed.Status = domain.StatusClosedTP
		_, err = manager.Size(ctx, decision("ETHUSDT", 2500), []*domain.Position{closed}, ethInstrument)
		assert.NoError(t, err)
	})

	t.Run("quantity below minimum", func(t *testing.T) {
		manager, err := NewRiskManager(defaultConfig(), nopLogger{})
		require.NoError(t, err)

		btc := &domain.Instrument{Symbol: "BTCUSDT", StepSize: 0.001, MinQty: 0.001}
		_, err = manager.Size(ctx, decision("BTCUSDT", 50000), nil, btc)
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	})

	t.Run("missing entry price", func(t *testing.T) {
		manager, err := NewRiskManager(defaultConfig(), nopLogger{})
		require.NoError(t, err)

		_, err = manager.Size(ctx, decision("ETHUSDT", 0), nil, ethInstrument)
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	})
}

func TestSize_SequentialEvaluationRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.MaxOpenPositions = 2
	manager, err := NewRiskManager(cfg, nopLogger{})
	require.NoError(t, err)

	var open []*domain.Position
	accepted := 0
	for _, symbol := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"} {
		intent, err := manager.Size(ctx, decision(symbol, 10), open, &domain.Instrument{StepSize: 0.1})
		if errors.Is(err, ports.ErrCapacityExceeded) {
			continue
		}
		require.NoError(t, err)
		accepted++
		open = append(open, &domain.Position{ID: fmt.Sprint(accepted), Symbol: intent.Symbol, Status: domain.StatusOpen})
	}
	assert.Equal(t, 2, accepted)
	assert.Len(t, open, 2)
}

func TestSize_LeverageCaps(t *testing.T) {
	cfg := defaultConfig()
	cfg.Leverage = 50
	cfg.MaxLeverage = 25
	manager, err := NewRiskManager(cfg, nopLogger{})
	require.NoError(t, err)

	assert.Equal(t, 25, manager.EffectiveLeverage(nil))
	assert.Equal(t, 10, manager.EffectiveLeverage(&domain.Instrument{MaxLeverage: 10}))

	intent, err := manager.Size(context.Background(), decision("ETHUSDT", 2500), nil, ethInstrument)
	require.NoError(t, err)
	assert.Equal(t, 25, intent.Leverage)
	assert.InDelta(t, 0.02, intent.Quantity, 1e-12)
}

func TestBalanceCooldown(t *testing.T) {
	ctx := context.Background()
	manager, err := NewRiskManager(defaultConfig(), nopLogger{})
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	manager.ObserveExecutionError(ctx, fmt.Errorf("open failed: %w", ports.ErrTimeout))
	_, err = manager.Size(ctx, decision("ETHUSDT", 2500), nil, ethInstrument)
	require.NoError(t, err, "non-balance errors do not pause entries")

	manager.ObserveExecutionError(ctx, fmt.Errorf("open failed: %w", ports.ErrInsufficientFunds))
	_, err = manager.Size(ctx, decision("ETHUSDT", 2500), nil, ethInstrument)
	assert.ErrorIs(t, err, ports.ErrCooldown)

	now = now.Add(61 * time.Minute)
	_, err = manager.Size(ctx, decision("ETHUSDT", 2500), nil, ethInstrument)
	assert.NoError(t, err)
}

func TestUpdateStats(t *testing.T) {
	manager, err := NewRiskManager(defaultConfig(), nopLogger{})
	require.NoError(t, err)

	closed := openPosition("SOLUSDT")
	closed.Status = domain.StatusClosedSL
	manager.UpdateStats(context.Background(), []*domain.Position{openPosition("BTCUSDT"), openPosition("ETHUSDT"), closed})

	stats := manager.GetStats()
	assert.Equal(t, 2, stats.OpenPositions)
	assert.Equal(t, 4.0, stats.TotalMargin)
	assert.Equal(t, 20.0, stats.TotalExposure)
}

func TestStepHelpers(t *testing.T) {
	assert.InDelta(t, 0.123, RoundToStep(0.12399, 0.001), 1e-12)
	assert.InDelta(t, 12, RoundToStep(12.9, 1), 1e-12)
	assert.Equal(t, 1.5, RoundToStep(1.5, 0))

	assert.Equal(t, int32(3), StepPrecision(0.001))
	assert.Equal(t, int32(0), StepPrecision(1))
	assert.Equal(t, "0.016", FormatToStep(0.0169, 0.001))
	assert.Equal(t, "3", FormatToStep(3.7, 1))
}
