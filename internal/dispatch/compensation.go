package dispatch

import (
	"context"
	"sync"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// compensationEntry is one node's declared rollback action, parsed from
// its Config["compensate"] block:
//
//	"compensate": {"type": "http", "config": {"url": "...", "method": "DELETE"}}
//
// The entry is resolved and run through the same Handler the node kind
// would normally use, so a compensating action is just another node
// execution rather than a distinct extension point.
type compensationEntry struct {
	nodeID string
	kind   domain.NodeKind
	config map[string]any
}

// CompensationManager records a compensating action per successful node
// and, on final execution failure, runs every recorded action in reverse
// order of registration. Grounded on the teacher's
// executor/error_strategies.go CompensatingAction/CompensationManager,
// generalized from the teacher's closure-valued Action field to a
// declarative node-kind-plus-config pair so compensations can be
// authored in workflow JSON rather than Go code.
type CompensationManager struct {
	mu      sync.Mutex
	entries []compensationEntry
}

func NewCompensationManager() *CompensationManager {
	return &CompensationManager{}
}

// RegisterIfPresent inspects node's config for a "compensate" block and
// records it. Call this after a node completes successfully; a node that
// never ran, or failed, has nothing to undo.
func (c *CompensationManager) RegisterIfPresent(node *builder.ExecutableNode) {
	raw, ok := node.Config["compensate"]
	if !ok {
		return
	}
	spec, ok := raw.(map[string]any)
	if !ok {
		return
	}
	kindStr, _ := spec["type"].(string)
	if kindStr == "" {
		return
	}
	cfg, _ := spec["config"].(map[string]any)
	if cfg == nil {
		cfg = map[string]any{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, compensationEntry{
		nodeID: node.ID,
		kind:   domain.NodeKind(kindStr),
		config: cfg,
	})
}

// CompensationResult reports the outcome of one compensating action.
type CompensationResult struct {
	NodeID string
	Err    error
}

// Run executes every registered compensation in LIFO order (mirroring
// the teacher's CompensationManager.ExecuteCompensations), stopping for
// nothing: a failed compensation is recorded and the rest still run.
func (c *CompensationManager) Run(ctx context.Context, registry *Registry, snap *ctxstore.Snapshot) []CompensationResult {
	c.mu.Lock()
	entries := append([]compensationEntry{}, c.entries...)
	c.mu.Unlock()

	results := make([]CompensationResult, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		results = append(results, CompensationResult{NodeID: e.nodeID, Err: c.runOne(ctx, registry, snap, e)})
	}
	return results
}

func (c *CompensationManager) runOne(ctx context.Context, registry *Registry, snap *ctxstore.Snapshot, e compensationEntry) error {
	handler, ok := registry.Lookup(e.kind)
	if !ok {
		return domain.NewNodeError(domain.ErrCodeUnknownHandle, e.nodeID, "no handler registered for compensation node type "+e.kind.String(), nil)
	}
	resolved, err := snap.ResolveConfig(e.config)
	if err != nil {
		return err
	}
	compNode := &builder.ExecutableNode{ID: "compensate:" + e.nodeID, Type: e.kind, Config: e.config}
	_, err = handler.Execute(ctx, compNode, resolved, snap)
	return err
}
