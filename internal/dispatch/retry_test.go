package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowforge/workflow-core/internal/domain"
)

func TestRetryPolicyDelayExponentialBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, p.Delay(1, nil))
	assert.Equal(t, 2*time.Second, p.Delay(2, nil))
	assert.Equal(t, 4*time.Second, p.Delay(3, nil))
}

func TestRetryPolicyDelayClampsToMax(t *testing.T) {
	p := RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, 5*time.Second, p.Delay(10, nil))
}

func TestRetryPolicyDelayHonorsRetryAfterHint(t *testing.T) {
	p := DefaultRetryPolicy()
	hint := 500
	nodeErr := &domain.NodeError{Type: domain.NodeErrRateLimit, RetryAfter: &hint}
	assert.Equal(t, 500*time.Millisecond, p.Delay(1, nodeErr))
}

func TestRetryPolicyDelayClampsRetryAfterHintToMaxDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 2}
	hint := 60000
	nodeErr := &domain.NodeError{Type: domain.NodeErrServer, RetryAfter: &hint}
	assert.Equal(t, time.Second, p.Delay(1, nodeErr))
}

func TestShouldRetryRequiresRetryableNodeError(t *testing.T) {
	p := DefaultRetryPolicy()

	retryable := &domain.NodeError{Type: domain.NodeErrTimeout, Retryable: true}
	nodeErr, ok := p.ShouldRetry(1, retryable)
	assert.True(t, ok)
	assert.Same(t, retryable, nodeErr)

	notRetryable := &domain.NodeError{Type: domain.NodeErrValidation, Retryable: false}
	_, ok = p.ShouldRetry(1, notRetryable)
	assert.False(t, ok)

	_, ok = p.ShouldRetry(1, assertErr{})
	assert.False(t, ok)
}

func TestShouldRetryRespectsMaxRetries(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}
	retryable := &domain.NodeError{Type: domain.NodeErrTimeout, Retryable: true}

	_, ok := p.ShouldRetry(2, retryable)
	assert.True(t, ok)
	_, ok = p.ShouldRetry(3, retryable)
	assert.False(t, ok)
}

type assertErr struct{}

func (assertErr) Error() string { return "plain error" }
