// Package builder implements the Graph Builder (C1): it turns a
// workflow.Definition into a BuiltWorkflow, or a structured list of
// build errors, following the four-stage pipeline of spec §4.1.
package builder

import "github.com/flowforge/workflow-core/internal/domain"

// ExecutableNode is one node of the built plan.
type ExecutableNode struct {
	ID           string
	Type         domain.NodeKind
	Name         string
	Config       map[string]any
	Depth        int
	Dependencies []string
	Dependents   []string
}

// TypedEdge is one edge of the built plan, with its handle classified.
type TypedEdge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	HandleType   domain.HandleType
}

// LoopContext describes one loop node's sentinel pair and body set.
type LoopContext struct {
	Kind          domain.LoopKind
	ArrayPath     string
	BodyNodes     map[string]struct{}
	StartSentinel string
	EndSentinel   string
}

// BuiltWorkflow is the immutable execution plan produced by Build.
type BuiltWorkflow struct {
	Nodes              map[string]*ExecutableNode
	Edges              map[string]*TypedEdge
	ExecutionLevels    [][]string
	TriggerNodeID      string
	OutputNodeIDs      map[string]struct{}
	LoopContexts       map[string]*LoopContext
	ParallelBranches   map[string][]string
	MaxConcurrentNodes int

	// forward/reverse adjacency, derived, kept for C3's branch policy.
	Forward map[string][]string
	Reverse map[string][]string
	// EdgeByPair indexes TypedEdge by edgeKey(source, target), i.e.
	// source + "\x00" + target, for O(1) lookup.
	EdgeByPair map[string]*TypedEdge
	// exclusiveDownstream[edgeID] is the set of nodes reachable only
	// through that edge — precomputed once at build time (spec §4.3 hint).
	ExclusiveDownstream map[string]map[string]struct{}
}

// BuildError is a synchronous, structured failure of Build; execution
// never starts when any are returned.
type BuildError struct {
	Code    string
	NodeID  string
	EdgeID  string
	Message string
}

func (e BuildError) Error() string { return e.Code + ": " + e.Message }

// BuildWarning has the same shape as BuildError but does not block a build.
type BuildWarning struct {
	Code    string
	NodeID  string
	Message string
}
