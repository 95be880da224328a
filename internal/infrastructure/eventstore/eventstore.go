// Package eventstore persists the per-execution domain.Event channel
// (spec §6), an in-memory implementation for tests and a bun/pgdriver
// implementation for production, adapted from the teacher's
// storage/event_store.go (MemoryEventStore) and storage/bun_store.go
// (bun table model conventions).
package eventstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowforge/workflow-core/internal/domain"
)

// Store persists and replays the event channel of one or more executions.
type Store interface {
	Append(ctx context.Context, events ...domain.Event) error
	Events(ctx context.Context, executionID string) ([]domain.Event, error)
	EventsSince(ctx context.Context, executionID string, logicalTime uint64) ([]domain.Event, error)
}

// Memory is an in-memory Store, channel-keyed like the teacher's
// MemoryEventStore was execution-id-keyed.
type Memory struct {
	mu     sync.RWMutex
	events map[string][]domain.Event
}

func NewMemory() *Memory {
	return &Memory{events: map[string][]domain.Event{}}
}

func (m *Memory) Append(_ context.Context, events ...domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[e.Channel] = append(m.events[e.Channel], e)
	}
	return nil
}

func (m *Memory) Events(_ context.Context, executionID string) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Event, len(m.events[executionID]))
	copy(out, m.events[executionID])
	return out, nil
}

func (m *Memory) EventsSince(ctx context.Context, executionID string, logicalTime uint64) ([]domain.Event, error) {
	all, _ := m.Events(ctx, executionID)
	var out []domain.Event
	for _, e := range all {
		if e.LogicalTime > logicalTime {
			out = append(out, e)
		}
	}
	return out, nil
}

// EventsInRange mirrors Bun.EventsInRange for tests that exercise the
// backfill/aggregate commands against an in-memory store.
func (m *Memory) EventsInRange(_ context.Context, since, until time.Time) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Event
	for _, events := range m.events {
		for _, e := range events {
			if !e.OccurredAt.Before(since) && e.OccurredAt.Before(until) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// eventRow is the bun table model for a persisted event, following the
// teacher's bun_store.go field-tagging convention (jsonb payload column).
type eventRow struct {
	bun.BaseModel `bun:"table:execution_events,alias:ev"`

	ID          int64          `bun:"id,pk,autoincrement"`
	Channel     string         `bun:"channel"`
	Kind        string         `bun:"kind"`
	LogicalTime uint64         `bun:"logical_time"`
	OccurredAt  time.Time      `bun:"occurred_at"`
	Payload     map[string]any `bun:"payload,type:jsonb"`
}

// Bun is a Postgres-backed Store over bun+pgdriver.
type Bun struct {
	db *bun.DB
}

// NewBun opens a Postgres connection via pgdriver (the teacher's driver
// of choice for bun) and wraps it with the pgdialect query builder.
func NewBun(dsn string) *Bun {
	return NewBunWithDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))))
}

// NewBunWithDB wraps an already-open *sql.DB with the pgdialect query
// builder, so tests can inject a go-sqlmock connection instead of
// dialing a real Postgres instance.
func NewBunWithDB(sqldb *sql.DB) *Bun {
	return &Bun{db: bun.NewDB(sqldb, pgdialect.New())}
}

// InitSchema creates the execution_events table if it does not exist.
func (s *Bun) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*eventRow)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *Bun) Append(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*eventRow, len(events))
	for i, e := range events {
		rows[i] = &eventRow{
			Channel:     e.Channel,
			Kind:        string(e.Kind),
			LogicalTime: e.LogicalTime,
			OccurredAt:  e.OccurredAt,
			Payload:     e.Payload,
		}
	}
	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (s *Bun) Events(ctx context.Context, executionID string) ([]domain.Event, error) {
	var rows []eventRow
	if err := s.db.NewSelect().Model(&rows).Where("channel = ?", executionID).Order("logical_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

func (s *Bun) EventsSince(ctx context.Context, executionID string, logicalTime uint64) ([]domain.Event, error) {
	var rows []eventRow
	err := s.db.NewSelect().Model(&rows).
		Where("channel = ? AND logical_time > ?", executionID, logicalTime).
		Order("logical_time ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

// EventsInRange returns every event (across all execution channels)
// occurring in [since, until), for the backfill/aggregate CLI commands
// that summarize a calendar window rather than one execution.
func (s *Bun) EventsInRange(ctx context.Context, since, until time.Time) ([]domain.Event, error) {
	var rows []eventRow
	err := s.db.NewSelect().Model(&rows).
		Where("occurred_at >= ? AND occurred_at < ?", since, until).
		Order("occurred_at ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

func toEvents(rows []eventRow) []domain.Event {
	out := make([]domain.Event, len(rows))
	for i, r := range rows {
		out[i] = domain.Event{
			Channel:     r.Channel,
			Kind:        domain.EventKind(r.Kind),
			LogicalTime: r.LogicalTime,
			OccurredAt:  r.OccurredAt,
			Payload:     r.Payload,
		}
	}
	return out
}
