package builder

import (
	"fmt"

	"github.com/flowforge/workflow-core/internal/domain"
	"github.com/flowforge/workflow-core/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

const defaultMaxConcurrentNodes = 10

// buildCtx carries the mutable state threaded through the four stages.
type buildCtx struct {
	def      workflow.Definition
	errors   []BuildError
	warnings []BuildWarning

	forward map[string][]string
	reverse map[string][]string
	kinds   map[string]domain.NodeKind

	// loopBackEdges holds the id of every edge that is a legal back-edge
	// into a loop node, identified in stage 1 and resolved in stage 2.
	loopBackEdges map[string]struct{}

	reachable map[string]struct{}
	depth     map[string]int

	// Populated by stage 2 onward: the working node/edge set, which grows
	// to include loop sentinels and parallel branch copies.
	nodeConfigs      map[string]map[string]any
	nodeNames        map[string]string
	edges            []expandedEdge
	loopContexts     map[string]*LoopContext
	parallelBranches map[string][]string

	result *BuiltWorkflow
}

// Build runs the four-stage pipeline of spec §4.1, turning a
// workflow.Definition into a BuiltWorkflow, or a list of build errors.
func Build(def workflow.Definition) (*BuiltWorkflow, []BuildError, []BuildWarning) {
	b := &buildCtx{
		def:           def,
		forward:       map[string][]string{},
		reverse:       map[string][]string{},
		kinds:         map[string]domain.NodeKind{},
		loopBackEdges: map[string]struct{}{},
	}

	if err := structValidator.Struct(def); err != nil {
		b.fail(domain.ErrCodeInvalidInput, "", "", "%s", err.Error())
		return nil, b.errors, b.warnings
	}

	b.stage1Paths()
	if len(b.errors) > 0 {
		return nil, b.errors, b.warnings
	}

	b.stage2Loops()
	if len(b.errors) > 0 {
		return nil, b.errors, b.warnings
	}

	b.stage3Nodes()
	if len(b.errors) > 0 {
		return nil, b.errors, b.warnings
	}

	b.stage4Edges()
	if len(b.errors) > 0 {
		return nil, b.errors, b.warnings
	}

	b.validateVariableRefs()
	if len(b.errors) > 0 {
		return nil, b.errors, b.warnings
	}

	b.computeExclusiveDownstream()

	maxConcurrent := defaultMaxConcurrentNodes
	b.result.MaxConcurrentNodes = maxConcurrent

	return b.result, b.errors, b.warnings
}

func (b *buildCtx) fail(code, nodeID, edgeID, format string, args ...any) {
	b.errors = append(b.errors, BuildError{
		Code:    code,
		NodeID:  nodeID,
		EdgeID:  edgeID,
		Message: fmt.Sprintf(format, args...),
	})
}

func (b *buildCtx) warn(code, nodeID, format string, args ...any) {
	b.warnings = append(b.warnings, BuildWarning{
		Code:    code,
		NodeID:  nodeID,
		Message: fmt.Sprintf(format, args...),
	})
}
