package ctxstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigDeepWalk(t *testing.T) {
	s := New()
	_, err := s.StoreNodeOutput("fetchUser", map[string]any{"id": 7})
	require.NoError(t, err)

	config := map[string]any{
		"url": "https://api.example.com/users/{{fetchUser.id}}",
		"headers": map[string]any{
			"X-User-Id": "{{fetchUser.id}}",
		},
		"tags":   []any{"static", "{{fetchUser.id}}"},
		"static": 42,
	}

	resolved, err := s.ResolveConfig(config)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/users/7", resolved["url"])
	assert.Equal(t, 7, resolved["headers"].(map[string]any)["X-User-Id"])
	assert.Equal(t, []any{"static", 7}, resolved["tags"])
	assert.Equal(t, 42, resolved["static"])
}

func TestResolveConfigPropagatesError(t *testing.T) {
	s := New()
	config := map[string]any{"bad": "{{ )( invalid }}"}
	_, err := s.ResolveConfig(config)
	assert.Error(t, err)
}
