package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

func TestLoopHandlerCountKindIteratesThenExits(t *testing.T) {
	snap := ctxstore.New()
	node := &builder.ExecutableNode{ID: "iter"}
	resolved := map[string]any{"kind": "count", "count": 2}
	h := newLoopHandler()

	res, err := h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleLoopBody}, res.FiredHandles)
	assert.Equal(t, 0, res.Output.(map[string]any)["iteration"])

	res, err = h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleLoopBody}, res.FiredHandles)
	assert.Equal(t, 1, res.Output.(map[string]any)["iteration"])

	res, err = h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleDefault}, res.FiredHandles)
	assert.Equal(t, true, res.Output.(map[string]any)["completed"])
}

func TestLoopHandlerForEachKindYieldsEachItem(t *testing.T) {
	snap := ctxstore.New()
	node := &builder.ExecutableNode{ID: "iter"}
	resolved := map[string]any{"kind": "forEach", "arrayPath": []any{"a", "b"}}
	h := newLoopHandler()

	res, err := h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Output.(map[string]any)["item"])

	res, err = h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Output.(map[string]any)["item"])

	res, err = h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleDefault}, res.FiredHandles)
}

func TestLoopHandlerWhileKindExitsWhenConditionFails(t *testing.T) {
	snap := ctxstore.New()
	_, err := snap.StoreNodeOutput("counter", map[string]any{"n": 0})
	require.NoError(t, err)

	node := &builder.ExecutableNode{ID: "iter", Dependencies: []string{"counter"}}
	resolved := map[string]any{"kind": "while", "condition": "counter.n < 1"}
	h := newLoopHandler()

	res, err := h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleLoopBody}, res.FiredHandles)

	_, err = snap.StoreNodeOutput("counter", map[string]any{"n": 1})
	require.NoError(t, err)

	res, err = h.Execute(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleDefault}, res.FiredHandles)
}

func TestLoopHandlerForEachMissingArrayPathErrors(t *testing.T) {
	snap := ctxstore.New()
	node := &builder.ExecutableNode{ID: "iter"}
	h := newLoopHandler()

	_, err := h.Execute(context.Background(), node, map[string]any{"kind": "forEach"}, snap)
	assert.Error(t, err)
}
