package dispatch

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
	"github.com/flowforge/workflow-core/internal/governor"
	"github.com/flowforge/workflow-core/internal/infrastructure/metrics"
	"github.com/flowforge/workflow-core/internal/queue"
)

var tracer = otel.Tracer("github.com/flowforge/workflow-core/internal/dispatch")

// NodeOutcome is what the orchestrator learns after one node finishes.
type NodeOutcome struct {
	NodeID       string
	Output       any
	FiredHandles []domain.HandleType
	Err          error
	Evicted      []string
}

// Dispatcher pulls ready nodes and runs them to completion, honoring
// MaxConcurrentNodes, retry/backoff, and the per-node-kind circuit
// breaker. Grounded on executor/engine.go's executeWave semaphore
// pattern, generalized from a fixed wave list to the queue's live ready
// set (since branch pruning and loop re-admission change what's ready
// between calls, unlike the teacher's static wave plan).
type Dispatcher struct {
	registry *Registry
	breakers *BreakerRegistry
	governor *governor.Governor
	metrics  *metrics.Collector
	hints    *RetryHintCache
	policy   RetryPolicy
	maxNodes int
}

// New builds a Dispatcher. mc may be nil, in which case node execution
// metrics are simply not recorded (e.g. a test that doesn't care about
// the prometheus surface). hints may also be nil, in which case retry
// delays are purely local to this process.
func New(registry *Registry, breakers *BreakerRegistry, gov *governor.Governor, mc *metrics.Collector, hints *RetryHintCache, policy RetryPolicy, maxConcurrentNodes int) *Dispatcher {
	if maxConcurrentNodes <= 0 {
		maxConcurrentNodes = 10
	}
	return &Dispatcher{registry: registry, breakers: breakers, governor: gov, metrics: mc, hints: hints, policy: policy, maxNodes: maxConcurrentNodes}
}

// Registry, Breakers, and Policy expose the pieces a caller needs to build
// a per-execution Dispatcher variant (e.g. one submission overriding the
// governor's byte caps) without rebuilding the handler registry or the
// circuit breakers, which are safe to share across executions.
func (d *Dispatcher) Registry() *Registry         { return d.registry }
func (d *Dispatcher) Breakers() *BreakerRegistry  { return d.breakers }
func (d *Dispatcher) Policy() RetryPolicy         { return d.policy }
func (d *Dispatcher) Metrics() *metrics.Collector { return d.metrics }
func (d *Dispatcher) Hints() *RetryHintCache      { return d.hints }

// RunWave executes every node currently in ids concurrently (bounded by
// MaxConcurrentNodes) against wf/snap/q, and returns one NodeOutcome per
// node once all have finished.
func (d *Dispatcher) RunWave(ctx context.Context, wf *builder.BuiltWorkflow, snap *ctxstore.Snapshot, q *queue.State, ids []string) []NodeOutcome {
	sem := make(chan struct{}, d.maxNodes)
	outcomes := make([]NodeOutcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		q.MarkExecuting(id)
		go func(i int, nodeID string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = d.executeNode(ctx, wf, snap, nodeID)
		}(i, id)
	}
	wg.Wait()
	return outcomes
}

// executeNode resolves the node's config, runs its handler under the
// circuit breaker with retry/backoff, stores the output through the
// governor, and reports the outcome. It never mutates queue state — the
// caller applies MarkCompleted/MarkFailed once all of a wave's nodes are
// known, so branch pruning sees a consistent snapshot.
func (d *Dispatcher) executeNode(ctx context.Context, wf *builder.BuiltWorkflow, snap *ctxstore.Snapshot, nodeID string) NodeOutcome {
	ctx, span := tracer.Start(ctx, "executeNode", trace.WithAttributes(
		attribute.String("node.id", nodeID),
	))
	defer span.End()

	node := wf.Nodes[nodeID]
	handler, ok := d.registry.Lookup(node.Type)
	if !ok {
		err := domain.NewNodeError(domain.ErrCodeUnknownHandle, nodeID, "no handler registered for node type "+node.Type.String(), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return NodeOutcome{NodeID: nodeID, Err: err}
	}

	resolved, err := snap.ResolveConfig(node.Config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return NodeOutcome{NodeID: nodeID, Err: err}
	}

	kind := string(node.Type)
	started := time.Now()

	var result Result
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			nodeErr, _ := lastErr.(*domain.NodeError)
			delay := d.policy.Delay(attempt, nodeErr)
			if shared, ok := d.hints.Hint(ctx, kind); ok && shared > delay {
				delay = shared
			}
			d.observeRetry(kind)
			select {
			case <-ctx.Done():
				return NodeOutcome{NodeID: nodeID, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, lastErr = d.breakers.Execute(kind, func() (Result, error) {
			return handler.Execute(ctx, node, resolved, snap)
		})
		if lastErr == nil {
			break
		}
		if nodeErr, retry := d.policy.ShouldRetry(attempt+1, lastErr); retry {
			if nodeErr.RetryAfter != nil {
				d.hints.Record(ctx, kind, time.Duration(*nodeErr.RetryAfter)*time.Millisecond)
			}
			continue
		}
		break
	}

	if lastErr != nil {
		d.observeNode(kind, "failed", time.Since(started))
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		return NodeOutcome{NodeID: nodeID, Err: lastErr}
	}

	stillNeeded := pendingDependentsOf(wf, nodeID)
	evicted, gErr := d.governor.Admit(snap, nodeID, result.Output, stillNeeded)
	if gErr != nil {
		d.observeNode(kind, "pruned", time.Since(started))
		span.RecordError(gErr)
		span.SetStatus(codes.Error, gErr.Error())
		return NodeOutcome{NodeID: nodeID, Err: gErr, Evicted: evicted}
	}

	d.observeNode(kind, "succeeded", time.Since(started))
	return NodeOutcome{NodeID: nodeID, Output: result.Output, FiredHandles: result.FiredHandles, Evicted: evicted}
}

func (d *Dispatcher) observeNode(kind, outcome string, dur time.Duration) {
	if d.metrics != nil {
		d.metrics.ObserveNode(kind, outcome, dur)
	}
}

func (d *Dispatcher) observeRetry(kind string) {
	if d.metrics != nil {
		d.metrics.ObserveRetry(kind)
	}
}

// pendingDependentsOf returns every node reachable downstream of nodeID,
// whether or not it has already run, so the governor never evicts an
// output a later node will still need to interpolate (invariant P6).
func pendingDependentsOf(wf *builder.BuiltWorkflow, nodeID string) map[string]struct{} {
	needed := map[string]struct{}{}
	queue := append([]string{}, wf.Forward[nodeID]...)
	seen := map[string]struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		needed[cur] = struct{}{}
		queue = append(queue, wf.Forward[cur]...)
	}
	return needed
}
