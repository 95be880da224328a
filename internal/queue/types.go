// Package queue implements the Execution Queue (C3): the disjoint-set
// scheduler that decides which nodes are ready, applies branch-exclusivity
// pruning, and tracks join-node admission. Grounded on the teacher's
// executor/join.go JoinEvaluator, generalized from a single join-node
// tracker into the full six-set state machine of spec §4.3.
package queue

import (
	"sort"
	"sync"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/domain"
)

// joinState tracks one join (fan-in) node's incoming branch completions,
// generalizing JoinEvaluator.JoinBranchStatus to this package's node ids.
type joinState struct {
	strategy    domain.JoinStrategy
	minRequired int
	completed   map[string]struct{}
	skipped     map[string]struct{}
	incoming    []string
}

// State is the mutable scheduling state for one execution. It partitions
// every node into exactly one of six disjoint sets, per invariant P3.
type State struct {
	mu sync.Mutex

	wf *builder.BuiltWorkflow

	pending   map[string]struct{}
	ready     map[string]struct{}
	executing map[string]struct{}
	completed map[string]struct{}
	failed    map[string]struct{}
	skipped   map[string]struct{}

	// readyOrder preserves FIFO-by-(depth,insertion) tie-breaking for GetReady.
	readyOrder []string

	// activeHandles[nodeID] holds the HandleType(s) that fired out of
	// nodeID, used to resolve branch exclusivity once a conditional or
	// switch node completes.
	activeHandles map[string][]domain.HandleType

	joins map[string]*joinState

	// loopIteration[loopNodeID] is the current pass count, enforced
	// against maxLoopIterations (default 10,000, spec Open Question F).
	loopIteration map[string]int
}

const defaultMaxLoopIterations = 10000

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
