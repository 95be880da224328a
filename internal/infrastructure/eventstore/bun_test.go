package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflow-core/internal/domain"
)

func newMockBun(t *testing.T) (*Bun, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBunWithDB(db), mock
}

func TestBunInitSchemaIssuesCreateTable(t *testing.T) {
	store, mock := newMockBun(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "execution_events"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBunAppendInsertsEachEvent(t *testing.T) {
	store, mock := newMockBun(t)
	mock.ExpectExec(`INSERT INTO "execution_events"`).
		WillReturnResult(sqlmock.NewResult(1, 2))

	events := []domain.Event{
		domain.NewEvent("exec-1", domain.EventExecutionStarted, 1, nil),
		domain.NewEvent("exec-1", domain.EventNodeStarted, 2, map[string]any{"nodeId": "n1"}),
	}
	require.NoError(t, store.Append(context.Background(), events...))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBunAppendNoEventsSkipsTheQuery(t *testing.T) {
	store, mock := newMockBun(t)
	require.NoError(t, store.Append(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBunEventsScansMatchingChannel(t *testing.T) {
	store, mock := newMockBun(t)
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "channel", "kind", "logical_time", "occurred_at", "payload"}).
		AddRow(1, "exec-1", string(domain.EventExecutionStarted), 1, now, []byte(`{}`))
	mock.ExpectQuery(`SELECT (.+) FROM "execution_events"`).WillReturnRows(rows)

	events, err := store.Events(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventExecutionStarted, events[0].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBunEventsInRangeScansAcrossChannels(t *testing.T) {
	store, mock := newMockBun(t)
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "channel", "kind", "logical_time", "occurred_at", "payload"}).
		AddRow(1, "exec-1", string(domain.EventExecutionStarted), 1, now, []byte(`{}`)).
		AddRow(2, "exec-2", string(domain.EventExecutionCompleted), 1, now, []byte(`{}`))
	mock.ExpectQuery(`SELECT (.+) FROM "execution_events"`).WillReturnRows(rows)

	events, err := store.EventsInRange(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
