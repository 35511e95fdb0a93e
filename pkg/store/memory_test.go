package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/event-ingest/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	batch := makeEvents(5, 1_768_465_845)

	n, err := s.WriteBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = s.WriteBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 0, n, "replaying a batch must insert nothing")

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}

func TestMemoryStore_PartialOverlap(t *testing.T) {
	s := NewMemoryStore()
	batch := makeEvents(4, 1_768_465_845)

	_, err := s.WriteBatch(context.Background(), batch[:2])
	require.NoError(t, err)

	n, err := s.WriteBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMemoryStore_DuplicateWithinBatch(t *testing.T) {
	s := NewMemoryStore()
	ev := event.Event{ID: "dup", Timestamp: event.FromEpoch(1_768_465_845)}

	n, err := s.WriteBatch(context.Background(), []event.Event{ev, ev})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryStore_UnparseableTimestampWritesNothing(t *testing.T) {
	s := NewMemoryStore()
	batch := []event.Event{
		{ID: "ok", Timestamp: event.FromEpoch(1_768_465_845)},
		{ID: "bad", Timestamp: event.FromString("not a time")},
	}

	_, err := s.WriteBatch(context.Background(), batch)
	require.ErrorIs(t, err, event.ErrUnparseableTimestamp)
	require.False(t, s.Has("ok"))
}

func TestMemoryStore_NormalizesTimestamps(t *testing.T) {
	s := NewMemoryStore()
	want := time.Date(2026, 1, 15, 8, 30, 45, 0, time.UTC)

	_, err := s.WriteBatch(context.Background(), []event.Event{
		{ID: "sec", Timestamp: event.FromEpoch(1_768_465_845)},
		{ID: "ms", Timestamp: event.FromEpoch(1_768_465_845_000)},
		{ID: "iso", Timestamp: event.FromString("2026-01-15T08:30:45Z")},
	})
	require.NoError(t, err)

	for _, id := range []string{"sec", "ms", "iso"} {
		ts, ok := s.Timestamp(id)
		require.True(t, ok)
		require.True(t, want.Equal(ts), "%s: got %v", id, ts)
	}
}

func TestMemoryStore_FailNext(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("disk full")
	s.FailNext = boom

	_, err := s.WriteBatch(context.Background(), makeEvents(1, 1_768_465_845))
	require.ErrorIs(t, err, boom)
	require.False(t, s.Has("evt-0000"))

	n, err := s.WriteBatch(context.Background(), makeEvents(1, 1_768_465_845))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryStore_ExportIDs(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.WriteBatch(context.Background(), []event.Event{
		{ID: "b", Timestamp: event.FromEpoch(1)},
		{ID: "a", Timestamp: event.FromEpoch(2)},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := s.ExportIDs(context.Background(), &buf, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, "a\nb\n", buf.String())
}
