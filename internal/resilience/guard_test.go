package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/multiplier-cli/internal/config"
)

func TestNewGuard_FromConfig(t *testing.T) {
	g := NewGuard("tfserving",
		config.RetryConfig{MaxAttempts: 4, InitialBackoffMs: 10, MaxBackoffMs: 100, Multiplier: 3, JitterFraction: 0},
		config.CircuitConfig{FailureThreshold: 2, ResetTimeoutSecs: 5},
	)

	assert.Equal(t, 4, g.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, g.Retry.InitialBackoff)
	assert.Equal(t, 100*time.Millisecond, g.Retry.MaxBackoff)
	assert.InDelta(t, 3.0, g.Retry.Multiplier, 1e-9)
	assert.InDelta(t, DefaultRetryConfig().JitterFraction, g.Retry.JitterFraction, 1e-9)
	assert.NotNil(t, g.Retry.OnRetry)
	assert.Equal(t, 2, g.Breaker.cfg.FailureThreshold)
	assert.Equal(t, 5*time.Second, g.Breaker.cfg.ResetTimeout)
}

func TestNewGuard_Defaults(t *testing.T) {
	g := NewGuard("tfserving", config.RetryConfig{}, config.CircuitConfig{})
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, g.Retry.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, g.Retry.InitialBackoff)
	assert.InDelta(t, def.JitterFraction, g.Retry.JitterFraction, 1e-9)
	assert.Equal(t, 5, g.Breaker.cfg.FailureThreshold)
}

func TestNewGuard_Jitter(t *testing.T) {
	g := NewGuard("mistral", config.RetryConfig{JitterFraction: 0.5}, config.CircuitConfig{})
	assert.InDelta(t, 0.5, g.Retry.JitterFraction, 1e-9)
}

func TestRun_RetriesTransientThroughBreaker(t *testing.T) {
	g := &Guard{
		Retry:   fastRetry(),
		Breaker: NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 10, ResetTimeout: time.Hour}),
	}
	calls := 0
	v, err := Run(context.Background(), g, func(context.Context) (float32, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("unavailable"), 503)
		}
		return 0.25, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, v, 1e-6)
	assert.Equal(t, 2, calls)
}

func TestRun_OpenCircuitFailsFast(t *testing.T) {
	g := &Guard{
		Retry:   fastRetry(),
		Breaker: NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}),
	}
	calls := 0
	_, err := Run(context.Background(), g, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("unavailable"), 503)
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}
