package dispatch

import (
	"math"
	"time"

	"github.com/flowforge/workflow-core/internal/domain"
	"github.com/flowforge/workflow-core/pkg/workflow"
)

// RetryPolicy is the exponential-backoff policy of spec §4.4. Grounded on
// executor/retry.go's RetryExecutor, generalized to honor a server-supplied
// Retry-After hint instead of pure exponential backoff when one is given.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy matches spec §4.4's defaults: 3 retries, 1s base
// delay, 30s cap, doubling each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
}

// FromOptions builds a RetryPolicy from a submission's retryPolicy
// options, falling back to the default for any field left unset.
func FromOptions(opts *workflow.RetryPolicyOptions) RetryPolicy {
	p := DefaultRetryPolicy()
	if opts == nil {
		return p
	}
	if opts.MaxRetries > 0 {
		p.MaxRetries = opts.MaxRetries
	}
	if opts.BaseDelay > 0 {
		p.BaseDelay = time.Duration(opts.BaseDelay) * time.Millisecond
	}
	if opts.MaxDelay > 0 {
		p.MaxDelay = time.Duration(opts.MaxDelay) * time.Millisecond
	}
	if opts.Multiplier > 0 {
		p.Multiplier = opts.Multiplier
	}
	return p
}

// Delay returns the backoff delay before retry attempt n (1-indexed),
// honoring a server-supplied retryAfterMs hint when present, clamped to
// [0, MaxDelay].
func (p RetryPolicy) Delay(attempt int, nodeErr *domain.NodeError) time.Duration {
	if nodeErr != nil && nodeErr.RetryAfter != nil {
		hint := time.Duration(*nodeErr.RetryAfter) * time.Millisecond
		if hint < 0 {
			hint = 0
		}
		if hint > p.MaxDelay {
			hint = p.MaxDelay
		}
		return hint
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether attempt (the attempt about to be made, 1 for
// the first retry) is still within budget and err is retryable.
func (p RetryPolicy) ShouldRetry(attempt int, err error) (*domain.NodeError, bool) {
	if attempt > p.MaxRetries {
		return nil, false
	}
	nodeErr, ok := err.(*domain.NodeError)
	if !ok {
		return nil, false
	}
	return nodeErr, nodeErr.Retryable
}
