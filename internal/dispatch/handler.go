// Package dispatch implements the Node Dispatcher (C4): it pulls ready
// nodes from the queue, resolves their config, invokes the node-kind
// handler under a circuit breaker and retry policy, and reports the
// result back to the queue and context store. Grounded on the teacher's
// executor/engine.go wave/semaphore pattern, generalized from a fixed
// executor-per-NodeType map to this package's Handler registry.
package dispatch

import (
	"context"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// Result is what a Handler returns on success.
type Result struct {
	// Output is stored into the context store under the node's id.
	Output any
	// FiredHandles selects which outgoing edges the queue activates. Leave
	// nil for a plain node (every default/structural edge fires); a
	// conditional handler returns exactly one of {true, false}; a switch
	// handler returns exactly one case-<value>, and the queue falls back to
	// the default edge when no edge carries that case.
	FiredHandles []domain.HandleType
}

// Handler executes one node kind's activity contract (spec §6): resolved
// holds the node's config with every {{...}} template already resolved
// against the current context snapshot.
type Handler interface {
	Execute(ctx context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error)
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(ctx context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error)

func (f HandlerFunc) Execute(ctx context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
	return f(ctx, node, resolved, snap)
}

// Registry maps a node kind to the handler that executes it.
type Registry struct {
	handlers map[domain.NodeKind]Handler
}

// NewRegistry builds a registry with every spec §4.4 node-kind handler
// wired to its concrete implementation.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{handlers: map[domain.NodeKind]Handler{}}
	r.handlers[domain.NodeKindStart] = HandlerFunc(startHandler)
	r.handlers[domain.NodeKindOutput] = HandlerFunc(passthroughHandler)
	r.handlers[domain.NodeKindHumanReview] = HandlerFunc(humanReviewHandler)
	r.handlers[domain.NodeKindParallel] = HandlerFunc(passthroughHandler)
	r.handlers[domain.NodeKindLoopStart] = HandlerFunc(loopStartHandler)
	r.handlers[domain.NodeKindLoopEnd] = HandlerFunc(passthroughHandler)
	r.handlers[domain.NodeKindLoop] = newLoopHandler()
	r.handlers[domain.NodeKindConditional] = HandlerFunc(conditionalHandler)
	r.handlers[domain.NodeKindSwitch] = HandlerFunc(switchHandler)
	r.handlers[domain.NodeKindTransform] = HandlerFunc(scriptHandlerFor("script"))
	r.handlers[domain.NodeKindLLM] = newLLMHandler(deps)
	r.handlers[domain.NodeKindHTTP] = newHTTPHandler(deps)
	r.handlers[domain.NodeKindDB] = newDBHandler(deps)
	return r
}

// Register overrides or adds a handler for a node kind, used by tests and
// by deployments swapping in a different llm/http/db implementation.
func (r *Registry) Register(kind domain.NodeKind, h Handler) {
	r.handlers[kind] = h
}

func (r *Registry) Lookup(kind domain.NodeKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

func startHandler(_ context.Context, _ *builder.ExecutableNode, _ map[string]any, _ *ctxstore.Snapshot) (Result, error) {
	return Result{Output: map[string]any{"started": true}}, nil
}

func passthroughHandler(_ context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
	inputs := map[string]any{}
	for _, dep := range node.Dependencies {
		if v, ok := snap.GetNodeOutput(dep); ok {
			inputs[dep] = v
		}
	}
	if len(resolved) > 0 {
		inputs["config"] = resolved
	}
	return Result{Output: inputs}, nil
}

func loopStartHandler(_ context.Context, node *builder.ExecutableNode, _ map[string]any, snap *ctxstore.Snapshot) (Result, error) {
	return Result{Output: map[string]any{"loop": node.ID}}, nil
}

// humanReviewHandler has no interactive UI in this module's scope; it
// records that a review was requested and auto-resolves it at once. No
// approval_needed/approval_resolved events are emitted and the execution
// does not suspend.
func humanReviewHandler(_ context.Context, node *builder.ExecutableNode, resolved map[string]any, _ *ctxstore.Snapshot) (Result, error) {
	return Result{Output: map[string]any{
		"reviewed": true,
		"prompt":   resolved["prompt"],
	}}, nil
}
