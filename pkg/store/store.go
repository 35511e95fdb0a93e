// Package store persists ingested events idempotently, keyed by event id.
package store

import (
	"context"
	"io"

	"github.com/Sternrassler/event-ingest/pkg/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_written_total",
		Help: "Total number of events newly inserted into the store",
	})

	eventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_duplicate_total",
		Help: "Total number of events skipped because their id was already stored",
	})
)

// Store writes batches of events. WriteBatch returns the number of events that
// were newly inserted; events whose id already exists are silently skipped, so
// replaying a batch is safe.
type Store interface {
	WriteBatch(ctx context.Context, events []event.Event) (int, error)
}

// Exporter is implemented by stores that can enumerate what they hold.
type Exporter interface {
	Count(ctx context.Context) (int64, error)
	ExportIDs(ctx context.Context, w io.Writer, pageSize int) (int64, error)
}

func recordBatch(attempted, inserted int) {
	eventsWrittenTotal.Add(float64(inserted))
	eventsDuplicateTotal.Add(float64(attempted - inserted))
}
