// Package metrics exposes the Prometheus registry and the HTTP endpoints the
// ingestion process serves while it runs. All metrics are defined in their
// respective packages (ratelimit, client, pagination, store, checkpoint,
// ingest, progress) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the ingestion pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// HealthFunc reports whether the process is healthy. A nil HealthFunc is always healthy.
type HealthFunc func(ctx context.Context) error

// NewMux returns a mux serving /metrics and /health.
func NewMux(health HealthFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler(health))
	return mux
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// Serve runs an HTTP server for handler on addr until ctx is cancelled, then
// shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ingest_rate_limit_remaining (Gauge): Requests remaining in the current quota window
//   - ingest_rate_limit_waits_total{reason} (Counter): Waits by reason (preemptive, rejected)
//   - ingest_rate_limit_wait_seconds (Histogram): Duration of quota waits
//
// Request Metrics (pkg/client):
//   - ingest_requests_total{status} (Counter): Requests by HTTP status
//   - ingest_request_duration_seconds (Histogram): Request duration
//   - ingest_errors_total{class} (Counter): Errors by class (client, server, rate_limit, cursor_expired, network)
//
// Retry Metrics (pkg/client):
//   - ingest_retries_total{error_class} (Counter): Retry attempts by error class
//   - ingest_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - ingest_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - ingest_pages_total (Counter): Pages fetched
//   - ingest_cursor_restarts_total (Counter): Restarts from the beginning after cursor expiry
//
// Storage Metrics (pkg/store, pkg/checkpoint):
//   - ingest_events_written_total (Counter): Events newly inserted
//   - ingest_events_duplicate_total (Counter): Events skipped as already stored
//   - ingest_checkpoint_saves_total{backend} (Counter): Checkpoint saves
//   - ingest_checkpoint_errors_total{backend, operation} (Counter): Checkpoint failures
//
// Pipeline Metrics (pkg/ingest, pkg/progress):
//   - ingest_passes_total{outcome} (Counter): Worker passes (completed, premature, failed, cancelled)
//   - ingest_progress_events (Gauge): Cumulative events ingested
//   - ingest_progress_rate_events_per_second{window} (Gauge): Current and average rate
//   - ingest_progress_eta_seconds (Gauge): Estimated time to target (-1 when unknown)
//
// Example Prometheus Queries:
//
//   # Ingestion throughput
//   rate(ingest_events_written_total[5m])
//
//   # Duplicate ratio (replay after cursor expiry)
//   rate(ingest_events_duplicate_total[5m]) /
//   (rate(ingest_events_written_total[5m]) + rate(ingest_events_duplicate_total[5m]))
//
//   # Time spent waiting on quota
//   rate(ingest_rate_limit_wait_seconds_sum[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ingest_request_duration_seconds_bucket[5m]))
