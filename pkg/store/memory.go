package store

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/event-ingest/pkg/event"
)

// MemoryStore keeps events in a map keyed by id. It has the same idempotence
// and validation behavior as PostgresStore.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]event.Event
	times  map[string]time.Time

	// FailNext makes the next WriteBatch return this error without writing.
	FailNext error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]event.Event),
		times:  make(map[string]time.Time),
	}
}

// WriteBatch stores events whose id is not yet present.
func (m *MemoryStore) WriteBatch(ctx context.Context, events []event.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	normalized := make([]time.Time, len(events))
	for i, ev := range events {
		ts, err := ev.Timestamp.Normalize()
		if err != nil {
			return 0, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		normalized[i] = ts
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return 0, err
	}

	inserted := 0
	for i, ev := range events {
		if _, ok := m.events[ev.ID]; ok {
			continue
		}
		m.events[ev.ID] = ev
		m.times[ev.ID] = normalized[i]
		inserted++
	}

	recordBatch(len(events), inserted)
	return inserted, nil
}

// Has reports whether an event with id is stored.
func (m *MemoryStore) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[id]
	return ok
}

// Timestamp returns the normalized timestamp stored for id.
func (m *MemoryStore) Timestamp(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.times[id]
	return ts, ok
}

// Count returns the number of stored events.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

// ExportIDs writes all ids to w in sorted order, one per line.
func (m *MemoryStore) ExportIDs(ctx context.Context, w io.Writer, pageSize int) (int64, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	slices.Sort(ids)
	for i, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return int64(i), fmt.Errorf("failed to write id: %w", err)
		}
	}
	return int64(len(ids)), nil
}
