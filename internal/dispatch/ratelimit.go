package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryHintCache shares the last server-supplied retry-after hint for a
// node kind across every dispatcher process working the same workflow
// system, grounded on jordigilh-kubernaut's redis-backed rate-limit
// coordination: one process learning "the LLM provider wants 8s" should
// not leave every other process hammering it with its own independent
// exponential backoff in the meantime.
//
// A nil *redis.Client makes every method a no-op, so the dispatcher works
// standalone without Redis. cmd/workflow-core always passes a client,
// built from the configured REDIS_ADDR.
type RetryHintCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRetryHintCache wraps client. ttl bounds how long a hint is honored
// after it was last observed; zero selects a 30s default.
func NewRetryHintCache(client *redis.Client, ttl time.Duration) *RetryHintCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RetryHintCache{client: client, ttl: ttl}
}

func hintKey(kind string) string { return "workflow-core:retry-hint:" + kind }

// Hint returns the most recently observed shared delay for kind, if any
// other process (or this one) recorded one inside the TTL window.
func (c *RetryHintCache) Hint(ctx context.Context, kind string) (time.Duration, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	ms, err := c.client.Get(ctx, hintKey(kind)).Int64()
	if err != nil {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// Record stores delay as the shared hint for kind, so the next dispatcher
// process (or the next retry this process makes) observes it without
// having seen the originating server response itself.
func (c *RetryHintCache) Record(ctx context.Context, kind string, delay time.Duration) {
	if c == nil || c.client == nil || delay <= 0 {
		return
	}
	c.client.Set(ctx, hintKey(kind), delay.Milliseconds(), c.ttl)
}
