package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	t time.Time
}

func (c *manualClock) now() time.Time { return c.t }

func TestTokenBucketRefills(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(2, 2, clock.now)
	ctx := context.Background()

	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	assert.Zero(t, tb.GetStats().CurrentTokens)

	clock.t = clock.t.Add(500 * time.Millisecond)
	require.NoError(t, tb.Wait(ctx))

	stats := tb.GetStats()
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Zero(t, stats.BlockedRequests)
	assert.Zero(t, stats.CurrentTokens)
}

func TestTokenBucketBurstCap(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(10, 3, clock.now)

	clock.t = clock.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Wait(context.Background()))
	}

	// the bucket is empty and the clock is frozen, so only ctx can end the wait
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.Canceled)
	assert.Equal(t, int64(1), tb.GetStats().BlockedRequests)
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucketRateLimiter(0.001, 1)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketWaitPaces(t *testing.T) {
	tb := NewTokenBucketRateLimiter(50, 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
