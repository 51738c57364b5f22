// Package ratelimit provides the admission limiter the daemon applies to
// simulation submissions: a token bucket with a secondary sliding-window
// cap. Refill is lazy on each Allow check.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

type Limiter struct {
	mu           sync.Mutex
	capacity     int64
	fillRate     float64 // tokens per second
	available    float64
	lastRefill   time.Time
	windowStart  time.Time
	windowDur    time.Duration
	windowCount  int64
	maxPerWindow int64
}

// New creates a combined token bucket + sliding window limiter.
// maxPerWindow <= 0 disables the window cap.
func New(capacity int64, fillRate float64, windowDur time.Duration, maxPerWindow int64) *Limiter {
	now := time.Now()
	return &Limiter{
		capacity:     capacity,
		fillRate:     fillRate,
		available:    float64(capacity),
		lastRefill:   now,
		windowStart:  now,
		windowDur:    windowDur,
		maxPerWindow: maxPerWindow,
	}
}

// Allow reports whether one token can be consumed now.
func (l *Limiter) Allow() bool { return l.AllowN(1) }

// AllowN attempts to consume n tokens.
func (l *Limiter) AllowN(n int64) bool {
	if n <= 0 {
		return true
	}
	now := time.Now()
	meter := otel.GetMeterProvider().Meter("pptio-go")

	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.available = min(float64(l.capacity), l.available+elapsed*l.fillRate)
		l.lastRefill = now
	}
	if now.Sub(l.windowStart) >= l.windowDur {
		l.windowStart = now
		l.windowCount = 0
	}
	if l.maxPerWindow > 0 && l.windowCount+n > l.maxPerWindow {
		counter, _ := meter.Int64Counter("pptio_admission_window_drops_total")
		counter.Add(context.Background(), 1)
		return false
	}
	if float64(n) <= l.available {
		l.available -= float64(n)
		l.windowCount += n
		return true
	}
	counter, _ := meter.Int64Counter("pptio_admission_token_drops_total")
	counter.Add(context.Background(), 1)
	return false
}
