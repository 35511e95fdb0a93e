package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore holds the checkpoint in memory and records every save.
type MemoryStore struct {
	mu      sync.Mutex
	current Checkpoint
	history []Checkpoint

	// FailSave makes every Save return this error while set.
	FailSave error
}

// NewMemoryStore creates a store starting at initial.
func NewMemoryStore(initial Checkpoint) *MemoryStore {
	return &MemoryStore{current: initial}
}

// Load returns the current checkpoint.
func (m *MemoryStore) Load(ctx context.Context) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

// Save replaces the current checkpoint.
func (m *MemoryStore) Save(ctx context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}

	cp.UpdatedAt = time.Now().UTC()
	m.current = cp
	m.history = append(m.history, cp)
	savesTotal.WithLabelValues("memory").Inc()
	return nil
}

// History returns every saved checkpoint in order.
func (m *MemoryStore) History() []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Checkpoint, len(m.history))
	copy(out, m.history)
	return out
}
