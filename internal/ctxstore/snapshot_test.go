package ctxstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/domain"
)

func TestStoreAndGetNodeOutput(t *testing.T) {
	s := New()
	out, err := s.StoreNodeOutput("n1", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.True(t, out.Bytes > 0)

	v, ok := s.GetNodeOutput("n1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1}, v)

	assert.Equal(t, out.Bytes, s.TotalBytes())
}

func TestStoreNodeOutputOverwriteAdjustsTotal(t *testing.T) {
	s := New()
	first, err := s.StoreNodeOutput("n1", "short")
	require.NoError(t, err)
	second, err := s.StoreNodeOutput("n1", "a much much longer value than before")
	require.NoError(t, err)

	assert.NotEqual(t, first.Bytes, second.Bytes)
	assert.Equal(t, second.Bytes, s.TotalBytes())
}

func TestEvictOldestSkipsKeepSet(t *testing.T) {
	s := New()
	_, err := s.StoreNodeOutput("n1", "one")
	require.NoError(t, err)
	_, err = s.StoreNodeOutput("n2", "two")
	require.NoError(t, err)

	// n1 is oldest but is in the keep set, so it is skipped and n2, the
	// oldest output not kept, is evicted instead.
	id, freed, ok := s.EvictOldest(map[string]struct{}{"n1": {}})
	require.True(t, ok)
	assert.Equal(t, "n2", id)
	assert.True(t, freed > 0)

	_, ok = s.GetNodeOutput("n2")
	assert.False(t, ok)
	_, ok = s.GetNodeOutput("n1")
	assert.True(t, ok)
}

func TestEvictOldestNoneLeft(t *testing.T) {
	s := New()
	_, err := s.StoreNodeOutput("n1", "one")
	require.NoError(t, err)

	_, _, ok := s.EvictOldest(map[string]struct{}{"n1": {}})
	assert.False(t, ok)
}

func TestLoopFramePushPop(t *testing.T) {
	s := New()
	s.PushLoopFrame("loop1", 0, "apple")
	env := s.templateEnv()
	loop := env["loop"].(map[string]any)
	assert.Equal(t, "apple", loop["item"])
	assert.Equal(t, 0, loop["index"])

	require.NoError(t, s.PopLoopFrame())
	env = s.templateEnv()
	loop = env["loop"].(map[string]any)
	assert.Nil(t, loop["item"])
}

func TestPopLoopFrameFailsOnEmptyStack(t *testing.T) {
	s := New()
	err := s.PopLoopFrame()
	require.Error(t, err)

	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeStackUnderflow, derr.Code)
}

func TestPopParallelFrameFailsOnEmptyStack(t *testing.T) {
	s := New()
	err := s.PopParallelFrame()
	require.Error(t, err)

	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeStackUnderflow, derr.Code)
}

func TestPushParallelFramePopSucceeds(t *testing.T) {
	s := New()
	s.PushParallelFrame("fan1", "left")
	env := s.templateEnv()
	branch := env["branch"].(map[string]any)
	assert.Equal(t, "left", branch["name"])

	require.NoError(t, s.PopParallelFrame())
	env = s.templateEnv()
	branch = env["branch"].(map[string]any)
	assert.Nil(t, branch["name"])
}

func TestBuildFinalOutputsSkipsEvicted(t *testing.T) {
	s := New()
	_, err := s.StoreNodeOutput("out1", "value1")
	require.NoError(t, err)
	_, err = s.StoreNodeOutput("out2", "value2")
	require.NoError(t, err)
	s.EvictOldest(nil)

	outputs := s.BuildFinalOutputs(map[string]struct{}{"out1": {}, "out2": {}})
	assert.NotContains(t, outputs, "out1")
	assert.Equal(t, "value2", outputs["out2"])
}

func TestCreateContextSeedsInputs(t *testing.T) {
	s := CreateContext(map[string]any{"name": "ada"})
	v, err := s.Interpolate("{{input.name}}")
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}
