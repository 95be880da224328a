package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryHintCache(t *testing.T) *RetryHintCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRetryHintCache(client, time.Minute)
}

func TestRetryHintCacheNilClientIsANoop(t *testing.T) {
	var c *RetryHintCache
	_, ok := c.Hint(context.Background(), "llm")
	assert.False(t, ok)
	c.Record(context.Background(), "llm", 5*time.Second)

	c = NewRetryHintCache(nil, 0)
	_, ok = c.Hint(context.Background(), "llm")
	assert.False(t, ok)
}

func TestRetryHintCacheRoundTripsAHint(t *testing.T) {
	c := newTestRetryHintCache(t)
	ctx := context.Background()

	_, ok := c.Hint(ctx, "llm")
	assert.False(t, ok)

	c.Record(ctx, "llm", 8*time.Second)
	got, ok := c.Hint(ctx, "llm")
	require.True(t, ok)
	assert.Equal(t, 8*time.Second, got)
}

func TestRetryHintCacheIsolatesByKind(t *testing.T) {
	c := newTestRetryHintCache(t)
	ctx := context.Background()

	c.Record(ctx, "llm", 8*time.Second)
	_, ok := c.Hint(ctx, "http")
	assert.False(t, ok)
}

func TestRetryHintCacheIgnoresNonPositiveDelay(t *testing.T) {
	c := newTestRetryHintCache(t)
	ctx := context.Background()

	c.Record(ctx, "llm", 0)
	_, ok := c.Hint(ctx, "llm")
	assert.False(t, ok)
}
