package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/domain"
	"github.com/flowforge/workflow-core/pkg/workflow"
)

func node(typ, name string, cfg map[string]any) workflow.NodeDef {
	return workflow.NodeDef{Type: typ, Name: name, Config: cfg}
}

func edge(id, source, target, handle string) workflow.EdgeDef {
	return workflow.EdgeDef{ID: id, Source: source, Target: target, SourceHandle: handle}
}

func buildLinear(t *testing.T) *builder.BuiltWorkflow {
	t.Helper()
	def := workflow.Definition{
		Name:       "linear",
		EntryPoint: "start",
		Nodes: map[string]workflow.NodeDef{
			"start": node("start", "Start", nil),
			"mid":   node("transform", "Mid", nil),
			"done":  node("output", "Done", nil),
		},
		Edges: []workflow.EdgeDef{
			edge("e1", "start", "mid", ""),
			edge("e2", "mid", "done", ""),
		},
	}
	wf, errs, _ := builder.Build(def)
	require.Empty(t, errs)
	return wf
}

func buildConditional(t *testing.T) *builder.BuiltWorkflow {
	t.Helper()
	def := workflow.Definition{
		Name:       "cond",
		EntryPoint: "start",
		Nodes: map[string]workflow.NodeDef{
			"start": node("start", "Start", nil),
			"check": node("conditional", "Check", map[string]any{"expression": "true"}),
			"yes":   node("transform", "Yes", nil),
			"no":    node("transform", "No", nil),
			"join":  node("output", "Join", nil),
		},
		Edges: []workflow.EdgeDef{
			edge("e1", "start", "check", ""),
			edge("e2", "check", "yes", "true"),
			edge("e3", "check", "no", "false"),
			edge("e4", "yes", "join", ""),
			edge("e5", "no", "join", ""),
		},
	}
	wf, errs, _ := builder.Build(def)
	require.Empty(t, errs)
	return wf
}

func TestInitializeSeedsEntryPoint(t *testing.T) {
	wf := buildLinear(t)
	q := Initialize(wf)
	assert.Equal(t, []string{"start"}, q.GetReady())
}

func TestLinearProgressionCompletesAllNodes(t *testing.T) {
	wf := buildLinear(t)
	q := Initialize(wf)

	ready := q.GetReady()
	require.Equal(t, []string{"start"}, ready)
	q.MarkExecuting("start")
	q.MarkCompleted("start", nil)

	ready = q.GetReady()
	require.Equal(t, []string{"mid"}, ready)
	q.MarkExecuting("mid")
	q.MarkCompleted("mid", nil)

	ready = q.GetReady()
	require.Equal(t, []string{"done"}, ready)
	q.MarkExecuting("done")
	q.MarkCompleted("done", nil)

	assert.True(t, q.IsComplete())
}

func TestConditionalBranchPrunesInactiveSide(t *testing.T) {
	wf := buildConditional(t)
	q := Initialize(wf)

	q.MarkExecuting("start")
	q.MarkCompleted("start", nil)

	q.MarkExecuting("check")
	skipped := q.MarkCompleted("check", []domain.HandleType{domain.HandleTrue})
	assert.Contains(t, skipped, "no")

	ready := q.GetReady()
	assert.Equal(t, []string{"yes"}, ready)

	q.MarkExecuting("yes")
	q.MarkCompleted("yes", nil)

	// join's one surviving branch completed, its skipped sibling resolves
	// the join's wait_all admission.
	ready = q.GetReady()
	assert.Equal(t, []string{"join"}, ready)
}

func TestMarkFailedActivatesErrorEdgeAndPrunesRest(t *testing.T) {
	wf := buildConditional(t)
	q := Initialize(wf)
	q.MarkExecuting("start")
	q.MarkCompleted("start", nil)

	q.MarkExecuting("check")
	skipped := q.MarkFailed("check")
	// No error-handle edge declared for "check", so both true/false
	// downstream branches are pruned.
	assert.ElementsMatch(t, []string{"yes", "no"}, skipped)

	_, _, _, _, failed, _ := q.Snapshot()
	assert.Contains(t, failed, "check")

	// join's wait_all strategy resolves once every incoming branch is
	// accounted for, skipped or not, so it is admitted rather than stalled.
	assert.Equal(t, []string{"join"}, q.GetReady())
}

func TestReenterLoopResetsBodyNodes(t *testing.T) {
	def := workflow.Definition{
		Name:       "loop",
		EntryPoint: "start",
		Nodes: map[string]workflow.NodeDef{
			"start":   node("start", "Start", nil),
			"iter":    node("loop", "Iter", map[string]any{"kind": "count", "count": 2}),
			"process": node("transform", "Process", nil),
			"done":    node("output", "Done", nil),
		},
		Edges: []workflow.EdgeDef{
			edge("e1", "start", "iter", ""),
			edge("e2", "iter", "process", string(domain.HandleLoopBody)),
			edge("e3", "process", "iter", ""),
			edge("e4", "iter", "done", string(domain.HandleLoopExit)),
		},
	}
	wf, errs, _ := builder.Build(def)
	require.Empty(t, errs)

	q := Initialize(wf)
	lc := wf.LoopContexts["iter"]

	q.MarkExecuting("start")
	q.MarkCompleted("start", nil)
	assert.Equal(t, []string{lc.StartSentinel}, q.GetReady())

	q.MarkExecuting(lc.StartSentinel)
	q.MarkCompleted(lc.StartSentinel, nil)
	assert.Equal(t, []string{"iter"}, q.GetReady())

	q.MarkExecuting("iter")
	q.MarkCompleted("iter", []domain.HandleType{domain.HandleLoopBody})
	assert.Equal(t, []string{"process"}, q.GetReady())

	q.MarkExecuting("process")
	q.MarkCompleted("process", nil)

	err := q.ReenterLoop("iter", lc, 10)
	require.NoError(t, err)
	// iter itself is part of BodyNodes, so it is reset to pending and the
	// start sentinel is re-admitted to drive the next iteration.
	assert.Equal(t, []string{lc.StartSentinel}, q.GetReady())
}

func TestReenterLoopExceedsMaxIterations(t *testing.T) {
	wf := buildLinear(t) // no actual loop context needed for this check
	q := Initialize(wf)
	lc := &builder.LoopContext{BodyNodes: map[string]struct{}{}, StartSentinel: "start"}
	err := q.ReenterLoop("iter", lc, 1)
	require.NoError(t, err)
	err = q.ReenterLoop("iter", lc, 1)
	assert.Error(t, err)
}
