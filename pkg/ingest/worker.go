// Package ingest drives the pipeline: a Worker consumes one page sequence
// into the store, and the Orchestrator repeats Worker passes until the target
// count is reached.
package ingest

import (
	"context"
	"fmt"

	"github.com/Sternrassler/event-ingest/pkg/checkpoint"
	"github.com/Sternrassler/event-ingest/pkg/pagination"
	"github.com/Sternrassler/event-ingest/pkg/progress"
	"github.com/Sternrassler/event-ingest/pkg/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PageSource produces pages until exhausted. *pagination.Paginator implements it.
type PageSource interface {
	Next(ctx context.Context) (pagination.Result, bool, error)
}

// Worker persists one page sequence and checkpoints after every page.
type Worker struct {
	store       store.Store
	checkpoints checkpoint.Store
	tracker     *progress.Tracker
	logger      zerolog.Logger
}

// NewWorker creates a worker. tracker may be nil.
func NewWorker(st store.Store, checkpoints checkpoint.Store, tracker *progress.Tracker, logger zerolog.Logger) *Worker {
	return &Worker{
		store:       st,
		checkpoints: checkpoints,
		tracker:     tracker,
		logger:      logger.With().Str("component", "worker").Logger(),
	}
}

// Run consumes src to exhaustion and returns the number of events it newly
// inserted. start supplies the cumulative count the checkpoints build on.
//
// The fetch of page N+1 runs concurrently with the write of page N; both are
// joined before page N+1 is written, so checkpoints are saved in page order.
// Writes and checkpoint saves ignore ctx cancellation: a cancelled run stops
// between pages, never with a page written but not checkpointed.
func (w *Worker) Run(ctx context.Context, src PageSource, start checkpoint.Checkpoint) (int64, error) {
	var ingested int64
	cursor := start.Cursor

	current, ok, err := src.Next(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch first page: %w", err)
	}

	for ok {
		var (
			next              pagination.Result
			nextOK            bool
			fetchErr, saveErr error
			written           int
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			next, nextOK, fetchErr = src.Next(gctx)
			return fetchErr
		})
		g.Go(func() error {
			written, saveErr = w.persist(ctx, current, start.EventsIngested+ingested)
			return saveErr
		})
		_ = g.Wait()

		ingested += int64(written)

		if saveErr != nil {
			return ingested, saveErr
		}
		cursor = current.Cursor.String()
		if fetchErr != nil {
			return ingested, fmt.Errorf("fetch next page: %w", fetchErr)
		}

		current, ok = next, nextOK
	}

	// The stream ended on an empty page fetched with a cursor. Clear the cursor
	// so the next pass starts over instead of re-reading the stale position.
	if cursor != "" {
		cp := checkpoint.Checkpoint{EventsIngested: start.EventsIngested + ingested}
		if err := w.checkpoints.Save(context.WithoutCancel(ctx), cp); err != nil {
			return ingested, fmt.Errorf("save checkpoint: %w", err)
		}
		w.logger.Debug().Str("last_cursor", cursor).Msg("End of stream reached - cursor cleared")
	}

	w.logger.Info().
		Int64("ingested", ingested).
		Int64("total", start.EventsIngested+ingested).
		Msg("Worker finished")

	return ingested, nil
}

// persist writes one page and then saves its checkpoint. base is the cumulative
// count before this page.
func (w *Worker) persist(ctx context.Context, res pagination.Result, base int64) (int, error) {
	wctx := context.WithoutCancel(ctx)

	n, err := w.store.WriteBatch(wctx, res.Events)
	if err != nil {
		return 0, fmt.Errorf("write batch: %w", err)
	}
	if w.tracker != nil {
		w.tracker.Add(n)
	}

	cp := checkpoint.Checkpoint{
		Cursor:         res.Cursor.String(),
		EventsIngested: base + int64(n),
	}
	if err := w.checkpoints.Save(wctx, cp); err != nil {
		return n, fmt.Errorf("save checkpoint: %w", err)
	}

	w.logger.Debug().
		Int("batch", len(res.Events)).
		Int("inserted", n).
		Int64("events_ingested", cp.EventsIngested).
		Str("cursor", cp.Cursor).
		Msg("Page persisted")

	return n, nil
}
