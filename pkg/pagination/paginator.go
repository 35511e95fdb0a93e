package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/event-ingest/pkg/client"
	"github.com/Sternrassler/event-ingest/pkg/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultPageSize is the page size requested when Config.PageSize is unset.
const DefaultPageSize = 1000

var (
	cursorRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_cursor_restarts_total",
		Help: "Total number of pagination restarts after cursor expiry",
	})

	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_pages_total",
		Help: "Total number of pages fetched",
	})
)

// PageFetcher is the single-page retrieval the paginator drives.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor client.Cursor, limit int) (*client.Page, error)
}

// Config holds paginator configuration.
type Config struct {
	// StartCursor resumes a previous traversal. Empty starts at the beginning.
	StartCursor client.Cursor

	// PageSize is the limit sent with each request.
	PageSize int
}

// Result is one non-empty page of events.
type Result struct {
	Events []event.Event

	// Cursor is where to resume once Events are persisted. Empty when the
	// stream ended with this page.
	Cursor client.Cursor
}

// Paginator holds the traversal state: current cursor, done flag and counters.
// It is not safe for concurrent use.
type Paginator struct {
	fetcher  PageFetcher
	cursor   client.Cursor
	pageSize int
	done     bool
	restarts int
	pages    int
	logger   zerolog.Logger
}

// New creates a paginator positioned at cfg.StartCursor.
func New(fetcher PageFetcher, cfg Config, logger zerolog.Logger) *Paginator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Paginator{
		fetcher:  fetcher,
		cursor:   cfg.StartCursor,
		pageSize: cfg.PageSize,
		logger:   logger.With().Str("component", "paginator").Logger(),
	}
}

// Next returns the next page that carries events. The boolean is false once the
// stream is exhausted; after that Next never fetches again.
func (p *Paginator) Next(ctx context.Context) (Result, bool, error) {
	for !p.done {
		page, err := p.fetcher.FetchPage(ctx, p.cursor, p.pageSize)
		if err != nil {
			if errors.Is(err, client.ErrCursorExpired) {
				p.restarts++
				cursorRestartsTotal.Inc()
				p.logger.Warn().
					Str("cursor", p.cursor.String()).
					Int("restarts", p.restarts).
					Msg("Cursor expired - restarting from beginning of stream")
				p.cursor = ""
				continue
			}
			return Result{}, false, fmt.Errorf("fetch page (cursor %q): %w", p.cursor, err)
		}

		p.pages++
		pagesTotal.Inc()

		if len(page.Events) == 0 {
			if page.NextCursor.IsZero() {
				p.done = true
				p.logger.Debug().Int("pages", p.pages).Msg("End of stream")
				break
			}
			p.cursor = page.NextCursor
			continue
		}

		p.cursor = page.NextCursor
		if page.NextCursor.IsZero() {
			p.done = true
		}
		return Result{Events: page.Events, Cursor: page.NextCursor}, true, nil
	}
	return Result{}, false, nil
}

// Cursor returns the cursor the next fetch would use.
func (p *Paginator) Cursor() client.Cursor {
	return p.cursor
}

// Restarts returns how many times cursor expiry forced a restart.
func (p *Paginator) Restarts() int {
	return p.restarts
}

// Pages returns the number of pages fetched successfully.
func (p *Paginator) Pages() int {
	return p.pages
}

// Done reports whether the stream is exhausted.
func (p *Paginator) Done() bool {
	return p.done
}
