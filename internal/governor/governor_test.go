package governor

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

func newTestGovernor(opts ...Option) *Governor {
	return New(prometheus.NewRegistry(), opts...)
}

func TestAdmitRejectsOversizedNodeOutput(t *testing.T) {
	g := newTestGovernor(WithMaxNodeOutputBytes(8))
	snap := ctxstore.New()

	evicted, err := g.Admit(snap, "big", strings.Repeat("x", 100), nil)
	require.Error(t, err)
	assert.Nil(t, evicted)

	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeOutputTooLarge, derr.Code)
	assert.Equal(t, "big", derr.NodeID)
}

func TestAdmitRejectsWithoutStoringOrEvictingAnythingElse(t *testing.T) {
	g := newTestGovernor(WithMaxNodeOutputBytes(8))
	snap := ctxstore.New()

	_, err := g.Admit(snap, "n1", "small", nil)
	require.NoError(t, err)

	evicted, err := g.Admit(snap, "big", strings.Repeat("x", 100), nil)
	require.Error(t, err)
	assert.Empty(t, evicted)

	_, ok := snap.GetNodeOutput("big")
	assert.False(t, ok, "a rejected output must never be stored")

	v, ok := snap.GetNodeOutput("n1")
	require.True(t, ok, "an unrelated output must not be evicted by a rejection")
	assert.Equal(t, "small", v)

	n1Size, err := ctxstore.MeasureOutput("n1", "small")
	require.NoError(t, err)
	assert.Equal(t, n1Size.Bytes, snap.TotalBytes(), "the rejected output's bytes must never be counted")
}

func TestAdmitStoresOutputUnderCaps(t *testing.T) {
	g := newTestGovernor()
	snap := ctxstore.New()

	evicted, err := g.Admit(snap, "n1", map[string]any{"ok": true}, nil)
	require.NoError(t, err)
	assert.Empty(t, evicted)

	v, ok := snap.GetNodeOutput("n1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"ok": true}, v)
}

func TestAdmitEvictsOldestFirstRespectingStillNeeded(t *testing.T) {
	g := newTestGovernor(WithMaxContextBytes(16))
	snap := ctxstore.New()

	_, err := g.Admit(snap, "n1", strings.Repeat("a", 5), map[string]struct{}{"n2": {}})
	require.NoError(t, err)
	_, err = g.Admit(snap, "n2", strings.Repeat("b", 5), map[string]struct{}{"n2": {}})
	require.NoError(t, err)

	// n1 and n2 take 7 canonical bytes each; n3 adds 3, so its admission
	// must shrink the context back under the 16-byte cap; n1 is the oldest
	// evictable entry (n2 is protected by stillNeeded).
	evicted, err := g.Admit(snap, "n3", "c", map[string]struct{}{"n2": {}})
	require.NoError(t, err)
	assert.Contains(t, evicted, "n1")
	assert.NotContains(t, evicted, "n2")

	_, ok := snap.GetNodeOutput("n1")
	assert.False(t, ok)
	_, ok = snap.GetNodeOutput("n2")
	assert.True(t, ok)
}

func TestAdmitReturnsContextOverflowWhenNothingEvictable(t *testing.T) {
	g := newTestGovernor(WithMaxContextBytes(1))
	snap := ctxstore.New()

	stillNeeded := map[string]struct{}{"n1": {}}
	_, err := g.Admit(snap, "n1", strings.Repeat("a", 10), stillNeeded)
	require.Error(t, err)

	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeContextOverflow, derr.Code)
}
