package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/ports"
)

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", errs: nil, wantCalls: 1},
		{name: "transient then success", errs: []error{ports.ErrTimeout, ports.ErrRateLimited}, wantCalls: 3},
		{name: "permanent error is not retried", errs: []error{ports.ErrInsufficientFunds}, wantCalls: 1, wantErr: ports.ErrInsufficientFunds},
		{name: "retries exhausted", errs: []error{ports.ErrConnectionFailed, ports.ErrConnectionFailed, ports.ErrConnectionFailed, ports.ErrConnectionFailed}, wantCalls: 4, wantErr: ports.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			errs := tt.errs
			v, err := retry(context.Background(), fastPolicy(), &mockLogger{}, "Op", func(ctx context.Context) (int, error) {
				calls++
				if len(errs) > 0 {
					e := errs[0]
					errs = errs[1:]
					return 0, fmt.Errorf("call: %w", e)
				}
				return 42, nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, ports.ErrExecution)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 42, v)
		})
	}
}

func TestRetry_PerCallTimeout(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, CallTimeout: 5 * time.Millisecond}
	calls := 0
	_, err := retry(context.Background(), policy, &mockLogger{}, "Slow", func(ctx context.Context) (struct{}, error) {
		calls++
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ports.ErrExecution)
	assert.ErrorIs(t, err, ports.ErrTimeout)
}

func TestRetry_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := retry(ctx, fastPolicy(), &mockLogger{}, "Canceled", func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}
