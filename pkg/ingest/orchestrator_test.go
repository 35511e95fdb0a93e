package ingest

import (
	"context"
	"testing"

	"github.com/Sternrassler/event-ingest/internal/testutil"
	"github.com/Sternrassler/event-ingest/pkg/checkpoint"
	"github.com/Sternrassler/event-ingest/pkg/client"
	"github.com/Sternrassler/event-ingest/pkg/ratelimit"
	"github.com/Sternrassler/event-ingest/pkg/store"
	"github.com/stretchr/testify/require"
)

// scriptedFactory hands out one source per pass and records the start cursors.
type scriptedFactory struct {
	sources []*scriptedSource
	starts  []client.Cursor
}

func (f *scriptedFactory) build(start client.Cursor, pageSize int) PageSource {
	f.starts = append(f.starts, start)
	if len(f.sources) == 0 {
		return &scriptedSource{}
	}
	src := f.sources[0]
	f.sources = f.sources[1:]
	return src
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	ids := testutil.EventIDs("evt", 10)
	dataset := &testutil.Dataset{Pages: []testutil.DatasetPage{
		{IDs: ids[0:4], NextCursor: "c1"},
		{IDs: ids[4:8], NextCursor: "c2"},
		{IDs: ids[8:10], NextCursor: ""},
	}}

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHandler(dataset.Handler())

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), quietLogger(), ratelimit.WithClock(nil, noSleep))
	apiClient, err := client.New(client.DefaultConfig(mock.URL(), "test-key"), limiter, quietLogger(), client.WithSleep(noSleep))
	require.NoError(t, err)

	st := store.NewMemoryStore()
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{})
	worker := NewWorker(st, cps, nil, quietLogger())

	orch := NewOrchestrator(
		Config{Target: 10, PageSize: 4},
		NewPaginatorFactory(apiClient, quietLogger()),
		worker, cps, quietLogger(),
	)

	cp, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "", cp.Cursor)
	require.Equal(t, int64(10), cp.EventsIngested)

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), count)

	// One pass: three page requests and no restart from the beginning.
	require.Equal(t, 3, mock.RequestCount())

	history := cps.History()
	require.Len(t, history, 3)
	require.Equal(t, "c1", history[0].Cursor)
	require.Equal(t, int64(4), history[0].EventsIngested)
	require.Equal(t, "c2", history[1].Cursor)
	require.Equal(t, int64(8), history[1].EventsIngested)
}

func TestOrchestrator_ResumesFromCheckpointAfterExpiry(t *testing.T) {
	ids := testutil.EventIDs("evt", 10)
	dataset := &testutil.Dataset{Pages: []testutil.DatasetPage{
		{IDs: ids[0:4], NextCursor: "c1"},
		{IDs: ids[4:8], NextCursor: "c2"},
		{IDs: ids[8:10], NextCursor: ""},
	}}

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHandler(dataset.Handler())

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), quietLogger(), ratelimit.WithClock(nil, noSleep))
	apiClient, err := client.New(client.DefaultConfig(mock.URL(), "test-key"), limiter, quietLogger(), client.WithSleep(noSleep))
	require.NoError(t, err)

	// First four events were stored by an earlier run whose cursor has since expired.
	st := store.NewMemoryStore()
	_, err = st.WriteBatch(context.Background(), events(ids[0:4]...))
	require.NoError(t, err)
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{Cursor: "expired", EventsIngested: 4})

	orch := NewOrchestrator(
		Config{Target: 10, PageSize: 4},
		NewPaginatorFactory(apiClient, quietLogger()),
		NewWorker(st, cps, nil, quietLogger()), cps, quietLogger(),
	)

	cp, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), cp.EventsIngested, "replayed events are not double counted")

	reqs := mock.Requests()
	require.Equal(t, "expired", reqs[0].Cursor)
	require.Equal(t, "", reqs[1].Cursor)
}

func TestOrchestrator_ConvergesAfterPrematureTermination(t *testing.T) {
	st := store.NewMemoryStore()
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{})

	factory := &scriptedFactory{sources: []*scriptedSource{
		{steps: []sourceStep{pageOf("c1", idRange("a", 0, 4)...), pageOf("", idRange("a", 4, 6)...)}},
		{steps: []sourceStep{pageOf("c1", idRange("a", 0, 4)...), pageOf("", idRange("a", 4, 10)...)}},
	}}

	orch := NewOrchestrator(Config{Target: 10, PageSize: 4}, factory.build,
		NewWorker(st, cps, nil, quietLogger()), cps, quietLogger())

	cp, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), cp.EventsIngested)
	require.Len(t, factory.starts, 2, "a pass ending below target must be followed by another")
	require.Equal(t, client.Cursor(""), factory.starts[1])
}

func TestOrchestrator_PassLimit(t *testing.T) {
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{})
	factory := &scriptedFactory{sources: []*scriptedSource{
		{steps: []sourceStep{pageOf("", "a", "b")}},
	}}

	orch := NewOrchestrator(Config{Target: 10, MaxPasses: 1}, factory.build,
		NewWorker(store.NewMemoryStore(), cps, nil, quietLogger()), cps, quietLogger())

	cp, err := orch.Run(context.Background())
	require.ErrorIs(t, err, ErrPassLimit)
	require.Equal(t, int64(2), cp.EventsIngested)
	require.Len(t, factory.starts, 1)
}

func TestOrchestrator_AlreadyAtTarget(t *testing.T) {
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{EventsIngested: 12})
	factory := &scriptedFactory{}

	orch := NewOrchestrator(Config{Target: 10}, factory.build,
		NewWorker(store.NewMemoryStore(), cps, nil, quietLogger()), cps, quietLogger())

	cp, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12), cp.EventsIngested)
	require.Empty(t, factory.starts)
}

func TestOrchestrator_StartsFromCheckpointCursor(t *testing.T) {
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{Cursor: "c7", EventsIngested: 7})
	factory := &scriptedFactory{sources: []*scriptedSource{
		{steps: []sourceStep{pageOf("", "x", "y", "z")}},
	}}

	orch := NewOrchestrator(Config{Target: 10}, factory.build,
		NewWorker(store.NewMemoryStore(), cps, nil, quietLogger()), cps, quietLogger())

	_, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []client.Cursor{"c7"}, factory.starts)
}

func TestOrchestrator_WorkerErrorAborts(t *testing.T) {
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{})
	st := &failingStore{MemoryStore: store.NewMemoryStore(), failOn: 1}
	factory := &scriptedFactory{sources: []*scriptedSource{
		{steps: []sourceStep{pageOf("", "a")}},
	}}

	orch := NewOrchestrator(Config{Target: 10}, factory.build,
		NewWorker(st, cps, nil, quietLogger()), cps, quietLogger())

	_, err := orch.Run(context.Background())
	require.ErrorIs(t, err, errDiskFull)
	require.Len(t, factory.starts, 1)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{})
	factory := &scriptedFactory{}

	orch := NewOrchestrator(Config{Target: 10}, factory.build,
		NewWorker(store.NewMemoryStore(), cps, nil, quietLogger()), cps, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, factory.starts)
}

func TestOrchestrator_RestartsFromBeginningAfterEmptyEndPage(t *testing.T) {
	ids := testutil.EventIDs("evt", 8)
	// The page after c2 is empty with hasMore false.
	dataset := &testutil.Dataset{Pages: []testutil.DatasetPage{
		{IDs: ids[0:4], NextCursor: "c1"},
		{IDs: ids[4:8], NextCursor: "c2"},
	}}

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHandler(dataset.Handler())

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), quietLogger(), ratelimit.WithClock(nil, noSleep))
	apiClient, err := client.New(client.DefaultConfig(mock.URL(), "test-key"), limiter, quietLogger(), client.WithSleep(noSleep))
	require.NoError(t, err)

	cps := checkpoint.NewMemoryStore(checkpoint.Checkpoint{})
	orch := NewOrchestrator(
		Config{Target: 10, PageSize: 4, MaxPasses: 2},
		NewPaginatorFactory(apiClient, quietLogger()),
		NewWorker(store.NewMemoryStore(), cps, nil, quietLogger()), cps, quietLogger(),
	)

	cp, err := orch.Run(context.Background())
	require.ErrorIs(t, err, ErrPassLimit)
	require.Equal(t, int64(8), cp.EventsIngested)
	require.Equal(t, "", cp.Cursor)

	var cursors []string
	for _, r := range mock.Requests() {
		cursors = append(cursors, r.Cursor)
	}
	require.Equal(t, []string{"", "c1", "c2", "", "c1", "c2"}, cursors, "the second pass must not reuse the stale cursor")
}
