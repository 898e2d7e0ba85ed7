package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/multiplier-cli/internal/config"
)

// Guard combines retries with a circuit breaker. Each attempt passes through
// the breaker, so an open circuit fails fast without burning retries.
type Guard struct {
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewGuard builds a Guard from configuration, logging retries and breaker
// transitions under the given service name.
func NewGuard(service string, rc config.RetryConfig, cc config.CircuitConfig) *Guard {
	retry := DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		retry.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		retry.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction > 0 {
		retry.JitterFraction = rc.JitterFraction
	}
	retry.OnRetry = RetryLogger(service, "request")

	breaker := DefaultCircuitBreakerConfig()
	if cc.FailureThreshold > 0 {
		breaker.FailureThreshold = cc.FailureThreshold
	}
	if cc.ResetTimeoutSecs > 0 {
		breaker.ResetTimeout = time.Duration(cc.ResetTimeoutSecs) * time.Second
	}
	breaker.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("service", service),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	return &Guard{Retry: retry, Breaker: NewCircuitBreaker(breaker)}
}

// Run executes fn under the guard.
func Run[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoVal(ctx, g.Retry, func(ctx context.Context) (T, error) {
		return Call(ctx, g.Breaker, fn)
	})
}
