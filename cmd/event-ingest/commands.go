package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/event-ingest/pkg/checkpoint"
	"github.com/Sternrassler/event-ingest/pkg/client"
	"github.com/Sternrassler/event-ingest/pkg/ingest"
	"github.com/Sternrassler/event-ingest/pkg/metrics"
	"github.com/Sternrassler/event-ingest/pkg/progress"
	"github.com/Sternrassler/event-ingest/pkg/ratelimit"
	"github.com/Sternrassler/event-ingest/pkg/store"
)

func runIngest(ctx context.Context, cfgFile string) error {
	a, err := openApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	logger := a.logger

	if err := a.prepare(ctx, cfg.Database.AutoMigrate); err != nil {
		return err
	}

	start, err := a.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.LimiterConfig(), logger.With().Str("component", "rate-limiter").Logger())
	apiClient, err := client.New(cfg.ClientConfig(), limiter, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	tracker := progress.New(progress.Config{
		Target:   cfg.Ingest.Target,
		Initial:  start.EventsIngested,
		Interval: cfg.Ingest.ProgressInterval,
	}, logger)

	worker := ingest.NewWorker(a.events, a.checkpoints, tracker, logger)
	orch := ingest.NewOrchestrator(ingest.Config{
		Target:    cfg.Ingest.Target,
		PageSize:  cfg.API.PageSize,
		MaxPasses: cfg.Ingest.MaxPasses,
	}, ingest.NewPaginatorFactory(apiClient, logger), worker, a.checkpoints, logger)

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(serveCtx, cfg.Metrics.Addr, metrics.NewMux(a.health), logger); err != nil {
				logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	logger.Info().
		Str("cursor", start.Cursor).
		Int64("events_ingested", start.EventsIngested).
		Int64("target", cfg.Ingest.Target).
		Int("page_size", cfg.API.PageSize).
		Msg("Starting ingestion")

	tracker.Start(ctx)
	final, err := orch.Run(ctx)
	tracker.Stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().
				Int64("events_ingested", tracker.Total()).
				Msg("Interrupted - progress is checkpointed, rerun to resume")
			return nil
		}
		return err
	}

	logger.Info().
		Int64("events_ingested", final.EventsIngested).
		Int64("target", cfg.Ingest.Target).
		Msg("Ingestion complete")
	return nil
}

func runMigrate(ctx context.Context, cfgFile string) error {
	a, err := openApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.prepare(ctx, true)
}

func runStatus(ctx context.Context, cfgFile string, w io.Writer) error {
	a, err := openApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	cp, err := a.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	stored, err := a.events.Count(ctx)
	if err != nil {
		return err
	}

	writeStatus(w, cp, stored, a.cfg.Ingest.Target)
	return nil
}

// writeStatus prints a human-readable checkpoint summary.
func writeStatus(w io.Writer, cp checkpoint.Checkpoint, stored, target int64) {
	cursor := cp.Cursor
	if cursor == "" {
		cursor = "(start of stream)"
	}
	pct := 0.0
	if target > 0 {
		pct = float64(cp.EventsIngested) * 100 / float64(target)
	}

	fmt.Fprintf(w, "cursor:          %s\n", cursor)
	fmt.Fprintf(w, "events ingested: %d / %d (%.1f%%)\n", cp.EventsIngested, target, pct)
	fmt.Fprintf(w, "events stored:   %d\n", stored)
	if !cp.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated at:      %s\n", cp.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
}

func runExportIDs(ctx context.Context, cfgFile, out string, pageSize int, stdout io.Writer) error {
	a, err := openApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.WriteCloser = nopCloser{stdout}
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		w = f
	}

	n, err := exportIDs(ctx, a.events, w, pageSize)
	if err != nil {
		return err
	}

	a.logger.Info().Int64("ids", n).Str("out", out).Msg("Export complete")
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// exportIDs writes every stored id to w and closes it. A close error fails the
// export.
func exportIDs(ctx context.Context, exp store.Exporter, w io.WriteCloser, pageSize int) (int64, error) {
	n, err := exp.ExportIDs(ctx, w, pageSize)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export output: %w", cerr)
	}
	return n, err
}
