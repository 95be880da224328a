package orchestrator

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/dispatch"
	"github.com/flowforge/workflow-core/internal/domain"
	"github.com/flowforge/workflow-core/internal/governor"
	"github.com/flowforge/workflow-core/pkg/workflow"
)

func newTestOrchestrator() *Orchestrator {
	gov := governor.New(prometheus.NewRegistry())
	reg := dispatch.NewRegistry(dispatch.Dependencies{})
	disp := dispatch.New(reg, dispatch.NewBreakerRegistry(), gov, nil, nil, dispatch.DefaultRetryPolicy(), 4)
	return New(disp, gov, nil, zerolog.Nop())
}

func TestExecuteLinearWorkflowProducesOutput(t *testing.T) {
	o := newTestOrchestrator()
	sub := workflow.Submission{
		ExecutionID: "exec-1",
		Definition: workflow.Definition{
			Name:       "linear",
			EntryPoint: "start",
			Nodes: map[string]workflow.NodeDef{
				"start": {Type: "start", Name: "Start"},
				"calc":  {Type: "transform", Name: "Calc", Config: map[string]any{"script": "21 + 21"}},
				"done":  {Type: "output", Name: "Done"},
			},
			Edges: []workflow.EdgeDef{
				{ID: "e1", Source: "start", Target: "calc"},
				{ID: "e2", Source: "calc", Target: "done"},
			},
		},
	}

	res, err := o.Execute(context.Background(), sub)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	assert.Contains(t, res.Outputs, "done")

	var sawCompleted bool
	for _, ev := range res.Events {
		if ev.Kind == domain.EventExecutionCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestExecuteConditionalBranchPrunesInactiveSide(t *testing.T) {
	o := newTestOrchestrator()
	sub := workflow.Submission{
		ExecutionID: "exec-2",
		Definition: workflow.Definition{
			Name:       "conditional",
			EntryPoint: "start",
			Nodes: map[string]workflow.NodeDef{
				"start": {Type: "start", Name: "Start"},
				"check": {Type: "conditional", Name: "Check", Config: map[string]any{"expression": "true"}},
				"yes":   {Type: "output", Name: "Yes"},
				"no":    {Type: "output", Name: "No"},
			},
			Edges: []workflow.EdgeDef{
				{ID: "e1", Source: "start", Target: "check"},
				{ID: "e2", Source: "check", Target: "yes", SourceHandle: "true"},
				{ID: "e3", Source: "check", Target: "no", SourceHandle: "false"},
			},
		},
	}

	res, err := o.Execute(context.Background(), sub)
	require.NoError(t, err)
	assert.Contains(t, res.Skipped, "no")
	assert.NotContains(t, res.Skipped, "yes")
}

func TestExecuteFailingNodeReportsFailure(t *testing.T) {
	o := newTestOrchestrator()
	sub := workflow.Submission{
		ExecutionID: "exec-3",
		Definition: workflow.Definition{
			Name:       "failing",
			EntryPoint: "start",
			Nodes: map[string]workflow.NodeDef{
				"start": {Type: "start", Name: "Start"},
				// no "script" key configured: the transform handler fails
				// with a non-retryable error, so the node fails on its
				// first attempt.
				"bad":  {Type: "transform", Name: "Bad"},
				"done": {Type: "output", Name: "Done"},
			},
			Edges: []workflow.EdgeDef{
				{ID: "e1", Source: "start", Target: "bad"},
				{ID: "e2", Source: "bad", Target: "done"},
			},
		},
	}

	res, err := o.Execute(context.Background(), sub)
	require.NoError(t, err)
	assert.Contains(t, res.Failed, "bad")

	var sawFailed bool
	for _, ev := range res.Events {
		if ev.Kind == domain.EventExecutionFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)
}

func TestExecuteFailingNodeRunsRegisteredCompensation(t *testing.T) {
	o := newTestOrchestrator()
	sub := workflow.Submission{
		ExecutionID: "exec-5",
		Definition: workflow.Definition{
			Name:       "compensating",
			EntryPoint: "start",
			Nodes: map[string]workflow.NodeDef{
				"start": {Type: "start", Name: "Start", Config: map[string]any{
					"compensate": map[string]any{"type": "output", "config": map[string]any{}},
				}},
				"bad":  {Type: "transform", Name: "Bad"},
				"done": {Type: "output", Name: "Done"},
			},
			Edges: []workflow.EdgeDef{
				{ID: "e1", Source: "start", Target: "bad"},
				{ID: "e2", Source: "bad", Target: "done"},
			},
		},
	}

	res, err := o.Execute(context.Background(), sub)
	require.NoError(t, err)
	assert.Contains(t, res.Failed, "bad")

	var sawCompensation bool
	for _, ev := range res.Events {
		if ev.Kind == domain.EventCompensationRun && ev.Payload["nodeId"] == "start" {
			sawCompensation = true
			assert.NotContains(t, ev.Payload, "error")
		}
	}
	assert.True(t, sawCompensation)
}

func TestExecuteLoopWorkflowTerminates(t *testing.T) {
	o := newTestOrchestrator()
	sub := workflow.Submission{
		ExecutionID: "exec-4",
		Definition: workflow.Definition{
			Name:       "loop",
			EntryPoint: "start",
			Nodes: map[string]workflow.NodeDef{
				"start":   {Type: "start", Name: "Start"},
				"iter":    {Type: "loop", Name: "Iter", Config: map[string]any{"kind": "count", "count": 3}},
				"process": {Type: "output", Name: "Process"},
				"done":    {Type: "output", Name: "Done"},
			},
			Edges: []workflow.EdgeDef{
				{ID: "e1", Source: "start", Target: "iter"},
				{ID: "e2", Source: "iter", Target: "process", SourceHandle: string(domain.HandleLoopBody)},
				{ID: "e3", Source: "process", Target: "iter"},
				{ID: "e4", Source: "iter", Target: "done", SourceHandle: string(domain.HandleLoopExit)},
			},
		},
	}

	res, err := o.Execute(context.Background(), sub)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	assert.Contains(t, res.Outputs, "done")
}
