package dispatch

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowforge/workflow-core/internal/domain"
)

// BreakerRegistry keeps one gobreaker.CircuitBreaker per node kind, so a
// failing downstream service (an LLM provider down, a flaky API) trips
// independently of other node kinds in the same workflow. Replaces the
// teacher's hand-rolled executor/circuit_breaker.go with the ecosystem's
// sony/gobreaker: 5 consecutive failures of any kind open a breaker, it
// stays open for 60s, and one successful half-open probe re-closes it.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: map[string]*gobreaker.CircuitBreaker{}}
}

func (r *BreakerRegistry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.breakers[name] = cb
	return cb
}

// Execute runs fn through the named node kind's breaker. A breaker-open
// rejection surfaces as a retryable domain.NodeError so the dispatcher's
// normal retry/backoff path handles the wait.
func (r *BreakerRegistry) Execute(name string, fn func() (Result, error)) (Result, error) {
	cb := r.get(name)
	out, err := cb.Execute(func() (any, error) {
		res, err := fn()
		if err != nil {
			return Result{}, err
		}
		return res, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Result{}, &domain.NodeError{Type: domain.NodeErrServer, Message: "circuit breaker open for " + name, Retryable: true}
		}
		return Result{}, err
	}
	return out.(Result), nil
}
