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

func TestConditionalHandlerFiresTrueOrFalse(t *testing.T) {
	snap := ctxstore.New()
	_, err := snap.StoreNodeOutput("check", map[string]any{"score": 90})
	require.NoError(t, err)

	node := &builder.ExecutableNode{ID: "cond", Dependencies: []string{"check"}}
	resolved := map[string]any{"expression": "check.score > 50"}

	res, err := conditionalHandler(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleTrue}, res.FiredHandles)

	resolved["expression"] = "check.score > 1000"
	res, err = conditionalHandler(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.HandleFalse}, res.FiredHandles)
}

func TestConditionalHandlerRequiresExpression(t *testing.T) {
	snap := ctxstore.New()
	node := &builder.ExecutableNode{ID: "cond"}
	_, err := conditionalHandler(context.Background(), node, map[string]any{}, snap)
	assert.Error(t, err)
}

func TestSwitchHandlerFiresMatchingCase(t *testing.T) {
	snap := ctxstore.New()
	_, err := snap.StoreNodeOutput("user", map[string]any{"tier": "gold"})
	require.NoError(t, err)

	node := &builder.ExecutableNode{ID: "route", Dependencies: []string{"user"}}
	resolved := map[string]any{"expression": "user.tier"}

	res, err := switchHandler(context.Background(), node, resolved, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.HandleType{domain.CaseHandle("gold")}, res.FiredHandles)
}

func TestSwitchHandlerRejectsMalformedExpression(t *testing.T) {
	snap := ctxstore.New()
	node := &builder.ExecutableNode{ID: "route"}
	resolved := map[string]any{"expression": "user.tier ++"}

	_, err := switchHandler(context.Background(), node, resolved, snap)
	assert.Error(t, err)
}
