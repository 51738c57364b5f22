package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterConsumesBucket(t *testing.T) {
	l := New(3, 0.0001, time.Hour, 0)
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow(), "bucket exhausted, negligible refill")
}

func TestLimiterWindowCap(t *testing.T) {
	l := New(100, 1000, time.Hour, 2)
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow(), "window cap binds before the bucket does")
}

func TestLimiterRefills(t *testing.T) {
	l := New(1, 100, time.Hour, 0)
	require.True(t, l.Allow())
	require.False(t, l.Allow())
	time.Sleep(30 * time.Millisecond)
	require.True(t, l.Allow(), "refill at 100 tokens/s restores one token")
}

func TestAllowNZeroAlwaysPasses(t *testing.T) {
	l := New(0, 0, time.Hour, 0)
	require.True(t, l.AllowN(0))
	require.False(t, l.AllowN(1))
}
