package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := newFromCore(core, LevelInfo)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Info(ctx, "Position opened", map[string]interface{}{"symbol": "ETHUSDT", "qty": 0.016})
	l.Error(ctx, errors.New("boom"), "Close failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Position opened", entries[0].Message)
	assert.Equal(t, "ETHUSDT", entries[0].ContextMap()["symbol"])
	assert.Equal(t, 0.016, entries[0].ContextMap()["qty"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := New(Config{Level: LevelDebug, File: path})
	l.Warn(context.Background(), "Cooldown started", map[string]interface{}{"minutes": 60})
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Cooldown started")
	assert.Contains(t, string(data), `"minutes":60`)
	assert.Equal(t, LevelDebug, l.Level())
}
