package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/domain"
)

func TestMemoryAppendAndEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e1 := domain.NewEvent("exec-1", domain.EventExecutionStarted, 1, nil)
	e2 := domain.NewEvent("exec-1", domain.EventExecutionCompleted, 2, nil)
	require.NoError(t, m.Append(ctx, e1, e2))

	events, err := m.Events(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventExecutionStarted, events[0].Kind)
	assert.Equal(t, domain.EventExecutionCompleted, events[1].Kind)
}

func TestMemoryEventsSinceFiltersByLogicalTime(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx,
		domain.NewEvent("exec-1", domain.EventNodeStarted, 1, nil),
		domain.NewEvent("exec-1", domain.EventNodeCompleted, 2, nil),
		domain.NewEvent("exec-1", domain.EventExecutionCompleted, 3, nil),
	))

	since, err := m.EventsSince(ctx, "exec-1", 1)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(2), since[0].LogicalTime)
	assert.Equal(t, uint64(3), since[1].LogicalTime)
}

func TestMemoryEventsSinceUnknownChannelIsEmpty(t *testing.T) {
	m := NewMemory()
	out, err := m.EventsSince(context.Background(), "ghost", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryEventsInRangeSpansChannels(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	past := domain.Event{Channel: "exec-1", Kind: domain.EventExecutionStarted, OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	inRange := domain.Event{Channel: "exec-2", Kind: domain.EventExecutionCompleted, OccurredAt: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)}
	future := domain.Event{Channel: "exec-3", Kind: domain.EventExecutionStarted, OccurredAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, m.Append(ctx, past, inRange, future))

	since := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	out, err := m.EventsInRange(ctx, since, until)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "exec-2", out[0].Channel)
}
