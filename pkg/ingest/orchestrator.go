package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/event-ingest/pkg/checkpoint"
	"github.com/Sternrassler/event-ingest/pkg/client"
	"github.com/Sternrassler/event-ingest/pkg/pagination"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrPassLimit is returned when MaxPasses passes ran without reaching the target.
var ErrPassLimit = errors.New("pass limit reached before target")

// Pass outcomes.
const (
	outcomeCompleted = "completed"
	outcomePremature = "premature"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

var passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_passes_total",
	Help: "Total number of worker passes by outcome",
}, []string{"outcome"})

// Config holds orchestrator configuration.
type Config struct {
	// Target is the event count at which the run succeeds.
	Target int64

	// PageSize is passed to every paginator.
	PageSize int

	// MaxPasses bounds the number of passes. 0 means unlimited.
	MaxPasses int
}

// PaginatorFactory builds the page source for one pass.
type PaginatorFactory func(start client.Cursor, pageSize int) PageSource

// NewPaginatorFactory returns a factory producing *pagination.Paginator over fetcher.
func NewPaginatorFactory(fetcher pagination.PageFetcher, logger zerolog.Logger) PaginatorFactory {
	return func(start client.Cursor, pageSize int) PageSource {
		return pagination.New(fetcher, pagination.Config{StartCursor: start, PageSize: pageSize}, logger)
	}
}

// Orchestrator repeats worker passes until the checkpoint reaches the target.
type Orchestrator struct {
	config      Config
	factory     PaginatorFactory
	worker      *Worker
	checkpoints checkpoint.Store
	logger      zerolog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, factory PaginatorFactory, worker *Worker, checkpoints checkpoint.Store, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		config:      cfg,
		factory:     factory,
		worker:      worker,
		checkpoints: checkpoints,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes passes until the persisted checkpoint reports at least Target
// events. Each pass starts from a freshly loaded checkpoint. A pass that ends
// below target is logged as premature termination and followed by another
// pass. Worker errors abort the run; cancellation of ctx returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) (checkpoint.Checkpoint, error) {
	logger := o.logger.With().Str("run_id", uuid.NewString()).Logger()

	var cp checkpoint.Checkpoint
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return cp, err
		}

		loaded, err := o.checkpoints.Load(ctx)
		if err != nil {
			return cp, fmt.Errorf("load checkpoint: %w", err)
		}
		cp = loaded

		if cp.EventsIngested >= o.config.Target {
			logger.Info().
				Int64("events_ingested", cp.EventsIngested).
				Int64("target", o.config.Target).
				Int("passes", pass-1).
				Msg("Target reached")
			return cp, nil
		}

		if o.config.MaxPasses > 0 && pass > o.config.MaxPasses {
			return cp, fmt.Errorf("%w (%d passes, %d/%d events)", ErrPassLimit, o.config.MaxPasses, cp.EventsIngested, o.config.Target)
		}

		logger.Info().
			Int("pass", pass).
			Str("cursor", cp.Cursor).
			Int64("events_ingested", cp.EventsIngested).
			Int64("target", o.config.Target).
			Msg("Starting pass")

		src := o.factory(client.Cursor(cp.Cursor), o.config.PageSize)
		n, err := o.worker.Run(ctx, src, cp)
		if err != nil {
			if ctx.Err() != nil {
				passesTotal.WithLabelValues(outcomeCancelled).Inc()
				logger.Info().Int("pass", pass).Int64("inserted", n).Msg("Pass stopped by cancellation")
				return cp, ctx.Err()
			}
			passesTotal.WithLabelValues(outcomeFailed).Inc()
			return cp, fmt.Errorf("pass %d: %w", pass, err)
		}

		if cp.EventsIngested+n >= o.config.Target {
			passesTotal.WithLabelValues(outcomeCompleted).Inc()
			continue
		}

		passesTotal.WithLabelValues(outcomePremature).Inc()
		logger.Warn().
			Int("pass", pass).
			Int64("inserted", n).
			Int64("events_ingested", cp.EventsIngested+n).
			Int64("target", o.config.Target).
			Msg("Premature termination - stream ended below target, starting another pass")
	}
}
