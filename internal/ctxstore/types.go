// Package ctxstore implements the Context Store (C2): the per-execution
// snapshot of node outputs and variables, canonical-JSON byte accounting,
// and {{...}} template interpolation.
package ctxstore

import (
	"sync"

	"github.com/flowforge/workflow-core/internal/domain"
)

// NodeOutput is one node's stored result: the raw value plus its canonical
// JSON encoding and UTF-8 byte length, computed once at store time.
type NodeOutput struct {
	NodeID  string
	Value   any
	Canon   []byte
	Bytes   int
	Evicted bool
}

// LoopFrame is pushed onto the frame stack for the duration of one loop
// iteration, so {{loop.item}}/{{loop.index}} resolve to the current value.
type LoopFrame struct {
	LoopNodeID string
	Index      int
	Item       any
}

// ParallelFrame is pushed for the duration of one parallel branch, scoping
// {{branch.name}} lookups without polluting sibling branches.
type ParallelFrame struct {
	ParallelNodeID string
	Branch         string
}

// Snapshot is the mutable per-execution context: every node's stored
// output, workflow-scoped variables, and the active loop/parallel frames.
// All methods are safe for concurrent use; C4 dispatches nodes from
// multiple goroutines within a wave.
type Snapshot struct {
	mu sync.RWMutex

	outputs   map[string]*NodeOutput
	order     []string // insertion order, oldest first, for C5 eviction
	variables map[string]any
	inputs    map[string]any

	loopFrames     []LoopFrame
	parallelFrames []ParallelFrame

	totalBytes int
}

// OverflowError names the *domain.Error shape used for the
// ErrCodeOutputTooLarge and ErrCodeContextOverflow codes. StoreNodeOutput
// itself never returns it, since it enforces no caps; the size checks and
// eviction decisions belong to the governor (C5).
type OverflowError = domain.Error
