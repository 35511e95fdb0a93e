// Package checkpoint persists the ingestion resume position: the cursor to
// continue from and the running count of events ingested.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound indicates the checkpoint record has not been created.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the resume position. The zero value means "start of stream,
// nothing ingested".
type Checkpoint struct {
	// Cursor to resume from. Empty means the beginning of the stream.
	Cursor string `json:"cursor"`

	// EventsIngested is the cumulative number of newly stored events.
	EventsIngested int64 `json:"events_ingested"`

	// UpdatedAt is set by the store on Save.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store loads and saves the single checkpoint record.
type Store interface {
	Load(ctx context.Context) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
}

var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_checkpoint_saves_total",
		Help: "Total number of checkpoint saves by backend",
	}, []string{"backend"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_checkpoint_errors_total",
		Help: "Total number of checkpoint operation errors by backend and operation",
	}, []string{"backend", "operation"})
)
