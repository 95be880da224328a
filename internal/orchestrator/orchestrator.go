// Package orchestrator wires the Graph Builder, Context Store, Execution
// Queue, Node Dispatcher, and Size Governor into a single workflow
// execution: Plan -> Execute -> Finalize, grounded on the teacher's
// executor/engine.go WorkflowEngine.ExecuteWorkflow three-phase shape,
// generalized from the teacher's fixed wave list (plan.Waves) to the
// queue's live ready set, since branch pruning and loop re-entry change
// what is runnable between waves in a way a static plan cannot capture.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/dispatch"
	"github.com/flowforge/workflow-core/internal/domain"
	"github.com/flowforge/workflow-core/internal/governor"
	"github.com/flowforge/workflow-core/internal/infrastructure/metrics"
	"github.com/flowforge/workflow-core/internal/queue"
	"github.com/flowforge/workflow-core/pkg/workflow"
	"github.com/rs/zerolog"
)

// Result is what Execute returns once a workflow run reaches a terminal
// state.
type Result struct {
	ExecutionID string
	Outputs     map[string]any
	Failed      []string
	Skipped     []string
	Events      []domain.Event
}

// Orchestrator runs one workflow submission to completion.
type Orchestrator struct {
	dispatcher *dispatch.Dispatcher
	governor   *governor.Governor
	metrics    *metrics.Collector
	log        zerolog.Logger
}

// New builds an Orchestrator. mc may be nil, in which case execution
// metrics are simply not recorded.
func New(dispatcher *dispatch.Dispatcher, gov *governor.Governor, mc *metrics.Collector, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{dispatcher: dispatcher, governor: gov, metrics: mc, log: log}
}

// run is the per-execution mutable state threaded through Execute; it
// owns the logical clock the event channel is stamped with (spec §6:
// "strictly ordered by LogicalTime, never wall-clock time").
type run struct {
	mu     sync.Mutex
	clock  uint64
	events []domain.Event
}

func (r *run) emit(kind domain.EventKind, channel string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	r.events = append(r.events, domain.NewEvent(channel, kind, r.clock, payload))
}

// Execute runs submission to completion: Plan (build the graph), Execute
// (drive the queue/dispatcher loop wave by wave until every node reaches a
// terminal state or the execution times out), Finalize (collect outputs).
func (o *Orchestrator) Execute(ctx context.Context, sub workflow.Submission) (*Result, error) {
	started := time.Now()
	r := &run{}
	r.emit(domain.EventExecutionStarted, sub.ExecutionID, map[string]any{"executionId": sub.ExecutionID})

	wf, buildErrs, warnings := builder.Build(sub.Definition)
	if len(buildErrs) > 0 {
		r.emit(domain.EventExecutionFailed, sub.ExecutionID, map[string]any{"errors": buildErrs})
		o.observeExecution("build_failed", time.Since(started))
		return &Result{ExecutionID: sub.ExecutionID, Events: r.events}, fmt.Errorf("build failed: %s", buildErrs[0].Error())
	}
	for _, w := range warnings {
		o.log.Warn().Str("code", w.Code).Str("node", w.NodeID).Msg(w.Message)
	}

	if sub.Options.MaxConcurrentNodes > 0 {
		wf.MaxConcurrentNodes = sub.Options.MaxConcurrentNodes
	}
	maxNodeBytes := governor.DefaultMaxNodeOutputBytes
	if sub.Options.MaxNodeOutputBytes > 0 {
		maxNodeBytes = sub.Options.MaxNodeOutputBytes
	}
	maxContextBytes := governor.DefaultMaxContextBytes
	if sub.Options.MaxContextBytes > 0 {
		maxContextBytes = sub.Options.MaxContextBytes
	}
	gov := o.governor
	if sub.Options.MaxNodeOutputBytes > 0 || sub.Options.MaxContextBytes > 0 {
		gov = governor.New(nil, governor.WithMaxNodeOutputBytes(maxNodeBytes), governor.WithMaxContextBytes(maxContextBytes))
	}

	execTimeout := 30 * time.Minute
	if sub.Options.ExecutionTimeoutMs > 0 {
		execTimeout = time.Duration(sub.Options.ExecutionTimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	snap := ctxstore.CreateContext(sub.Inputs)
	q := queue.Initialize(wf)
	comp := dispatch.NewCompensationManager()
	// The handler registry and circuit breakers are shared across
	// executions (breaker trip state is meant to persist between runs);
	// only the governor, retry policy, and concurrency cap vary per
	// submission, so a fresh Dispatcher is built to carry those cheaply.
	disp := dispatch.New(o.dispatcher.Registry(), o.dispatcher.Breakers(), gov, o.dispatcher.Metrics(), o.dispatcher.Hints(), dispatch.FromOptions(sub.Options.RetryPolicy), wf.MaxConcurrentNodes)

	for !q.IsComplete() {
		select {
		case <-ctx.Done():
			r.emit(domain.EventExecutionFailed, sub.ExecutionID, map[string]any{"error": domain.ErrCodeExecutionTimeout})
			o.observeExecution("timeout", time.Since(started))
			return &Result{ExecutionID: sub.ExecutionID, Events: r.events}, domain.NewError(domain.ErrCodeExecutionTimeout, "execution exceeded its timeout", ctx.Err())
		default:
		}

		ready := q.GetReady()
		if len(ready) == 0 {
			// Nothing ready and not complete: every remaining node is
			// pending behind a join or loop that will never resolve.
			break
		}

		for _, id := range ready {
			r.emit(domain.EventNodeStarted, sub.ExecutionID, map[string]any{"nodeId": id})
		}

		outcomes := disp.RunWave(ctx, wf, snap, q, ready)

		for _, outcome := range outcomes {
			o.applyOutcome(r, sub.ExecutionID, wf, q, comp, outcome)
		}

		r.emit(domain.EventExecutionProgress, sub.ExecutionID, progressPayload(q))
	}

	pending, _, _, completed, failed, skipped := q.Snapshot()
	outputs := snap.BuildFinalOutputs(wf.OutputNodeIDs)

	if len(failed) > 0 {
		r.emit(domain.EventExecutionFailed, sub.ExecutionID, map[string]any{"failed": failed})
		o.observeExecution("failed", time.Since(started))
		for _, cr := range comp.Run(ctx, disp.Registry(), snap) {
			payload := map[string]any{"nodeId": cr.NodeID}
			if cr.Err != nil {
				payload["error"] = cr.Err.Error()
			}
			r.emit(domain.EventCompensationRun, sub.ExecutionID, payload)
		}
	} else if len(pending) > 0 {
		r.emit(domain.EventExecutionFailed, sub.ExecutionID, map[string]any{"deadlocked": pending})
		o.observeExecution("deadlocked", time.Since(started))
	} else {
		r.emit(domain.EventExecutionCompleted, sub.ExecutionID, map[string]any{"completed": completed})
		o.observeExecution("completed", time.Since(started))
	}

	return &Result{
		ExecutionID: sub.ExecutionID,
		Outputs:     outputs,
		Failed:      failed,
		Skipped:     skipped,
		Events:      r.events,
	}, nil
}

// applyOutcome reports one node's result back to the queue and, if it is
// a loop decision node that chose to continue, resets its body subgraph
// for another iteration (queue.ReenterLoop) instead of relying on the
// queue's plain admit, which never re-admits a node already completed.
func (o *Orchestrator) applyOutcome(r *run, executionID string, wf *builder.BuiltWorkflow, q *queue.State, comp *dispatch.CompensationManager, outcome dispatch.NodeOutcome) {
	for _, ev := range outcome.Evicted {
		r.emit(domain.EventExecutionProgress, executionID, map[string]any{"evicted": ev, "reason": domain.ErrCodeOutputPruned})
	}

	if outcome.Err != nil {
		skipped := q.MarkFailed(outcome.NodeID)
		r.emit(domain.EventNodeFailed, executionID, map[string]any{"nodeId": outcome.NodeID, "error": outcome.Err.Error()})
		for _, id := range skipped {
			r.emit(domain.EventExecutionProgress, executionID, map[string]any{"skipped": id})
		}
		return
	}

	if node, ok := wf.Nodes[outcome.NodeID]; ok {
		comp.RegisterIfPresent(node)
	}

	lc, isLoop := wf.LoopContexts[outcome.NodeID]
	continuing := isLoop && firedHandleIs(outcome.FiredHandles, domain.HandleLoopBody)

	skipped := q.MarkCompleted(outcome.NodeID, outcome.FiredHandles)
	r.emit(domain.EventNodeCompleted, executionID, map[string]any{"nodeId": outcome.NodeID})
	for _, id := range skipped {
		r.emit(domain.EventExecutionProgress, executionID, map[string]any{"skipped": id})
	}

	if continuing {
		if err := q.ReenterLoop(outcome.NodeID, lc, defaultMaxLoopIterations); err != nil {
			q.MarkFailed(outcome.NodeID)
			r.emit(domain.EventNodeFailed, executionID, map[string]any{"nodeId": outcome.NodeID, "error": err.Error()})
		}
	}
}

func (o *Orchestrator) observeExecution(outcome string, dur time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveExecution(outcome, dur)
	}
}

const defaultMaxLoopIterations = 10000

func firedHandleIs(handles []domain.HandleType, want domain.HandleType) bool {
	for _, h := range handles {
		if h == want {
			return true
		}
	}
	return false
}

func progressPayload(q *queue.State) map[string]any {
	pending, ready, executing, completed, failed, skipped := q.Snapshot()
	return map[string]any{
		"pending": len(pending), "ready": len(ready), "executing": len(executing),
		"completed": len(completed), "failed": len(failed), "skipped": len(skipped),
	}
}
