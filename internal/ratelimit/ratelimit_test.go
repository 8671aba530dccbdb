package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func TestLimiterStartsFull(t *testing.T) {
	l, _ := newTestLimiter(Config{MaxRequestsPerMinute: 60, BurstSize: 3})
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "bucket of 3 must reject the 4th immediate call")
}

func TestLimiterRefillsAtRate(t *testing.T) {
	l, clock := newTestLimiter(Config{MaxRequestsPerMinute: 60, BurstSize: 1})
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	// 60/min is one token per second.
	clock.advance(time.Second)
	assert.True(t, l.Allow())

	clock.advance(500 * time.Millisecond)
	assert.False(t, l.Allow(), "half a token is not a token")
	clock.advance(500 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestLimiterCapsAtBurst(t *testing.T) {
	l, clock := newTestLimiter(Config{MaxRequestsPerMinute: 600, BurstSize: 2})
	require.True(t, l.Allow())
	require.True(t, l.Allow())

	clock.advance(time.Hour)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "an idle hour must not accumulate beyond burst")
}

func TestZeroRateNeverRefills(t *testing.T) {
	l, clock := newTestLimiter(Config{MaxRequestsPerMinute: 0, BurstSize: 2})
	require.True(t, l.Allow())
	require.True(t, l.Allow())

	clock.advance(24 * time.Hour)
	assert.False(t, l.Allow(), "zero rate is a hard cap")
}

func TestWaitHonorsContext(t *testing.T) {
	l := NewLimiter(Config{MaxRequestsPerMinute: 0, BurstSize: 1})
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistryPerConnectorOverride(t *testing.T) {
	r := NewRegistry(
		Config{MaxRequestsPerMinute: 60, BurstSize: 1},
		map[string]Config{"slack": {MaxRequestsPerMinute: 60, BurstSize: 3}},
	)

	assert.True(t, r.Check("slack"))
	assert.True(t, r.Check("slack"))
	assert.True(t, r.Check("slack"))
	assert.False(t, r.Check("slack"))

	assert.True(t, r.Check("discord"), "default bucket applies to unconfigured connectors")
	assert.False(t, r.Check("discord"))
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(Config{MaxRequestsPerMinute: 60, BurstSize: 5}, nil)
	r.Check("echo")
	stats := r.Stats()
	assert.Equal(t, 1, stats["active_buckets"])
	buckets := stats["buckets"].(map[string]interface{})
	require.Contains(t, buckets, "echo")
}
