package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Sternrassler/event-ingest/pkg/client"
	"github.com/Sternrassler/event-ingest/pkg/event"
	"github.com/Sternrassler/event-ingest/pkg/pagination"
	"github.com/Sternrassler/event-ingest/pkg/store"
	"github.com/rs/zerolog"
)

func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func events(ids ...string) []event.Event {
	out := make([]event.Event, len(ids))
	for i, id := range ids {
		out[i] = event.Event{ID: id, Timestamp: event.FromEpoch(1_768_465_845 + int64(i))}
	}
	return out
}

func idRange(prefix string, from, to int) []string {
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, fmt.Sprintf("%s-%d", prefix, i))
	}
	return ids
}

// sourceStep is one scripted Next outcome.
type sourceStep struct {
	result pagination.Result
	err    error
}

// scriptedSource replays steps and reports exhaustion afterwards.
type scriptedSource struct {
	mu    sync.Mutex
	steps []sourceStep
	calls int
}

func (s *scriptedSource) Next(ctx context.Context) (pagination.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return pagination.Result{}, false, nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.err != nil {
		return pagination.Result{}, false, step.err
	}
	return step.result, true, nil
}

func pageOf(cursor client.Cursor, ids ...string) sourceStep {
	return sourceStep{result: pagination.Result{Events: events(ids...), Cursor: cursor}}
}

// failingStore fails the write with the given 1-based index.
type failingStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	failOn int
	writes int
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) WriteBatch(ctx context.Context, batch []event.Event) (int, error) {
	f.mu.Lock()
	f.writes++
	fail := f.writes == f.failOn
	f.mu.Unlock()
	if fail {
		return 0, errDiskFull
	}
	return f.MemoryStore.WriteBatch(ctx, batch)
}
