// Package resilience provides a constant-delay retry helper, used around
// prepare-document's HTTP fetch, and an adaptive circuit breaker, used by
// the catalog fetcher to guard its backup URL.
package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry executes fn up to attempts times, waiting exactly delay between
// attempts (constant delay, not exponential backoff). Every error is retried;
// errors are not classified.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	var lastErr error
	meter := otel.Meter("attackctl")
	attemptCounter, _ := meter.Int64Counter("attackctl_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("attackctl_resilience_retry_success_total")
	failCounter, _ := meter.Int64Counter("attackctl_resilience_retry_fail_total")
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
