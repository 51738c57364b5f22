// Package resilience holds retry/backoff helpers for the few outbound
// calls the system makes (feed fetches, transport requests).
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry executes fn up to attempts times with exponential backoff and
// full jitter. delay is the initial backoff; it doubles per attempt and
// is capped at 60s. Context cancellation aborts between attempts.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	meter := otel.Meter("pptio-go")
	attemptCounter, _ := meter.Int64Counter("pptio_retry_attempts_total")
	failCounter, _ := meter.Int64Counter("pptio_retry_fail_total")

	cur := delay
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
