// Package progress reports ingestion throughput and estimated completion.
// It is bookkeeping only; nothing in the pipeline branches on its output.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultInterval is the snapshot period when Config.Interval is unset.
const DefaultInterval = 5 * time.Second

var (
	progressEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_progress_events",
		Help: "Cumulative number of events ingested",
	})

	progressRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_progress_rate_events_per_second",
		Help: "Ingestion rate by window (current, average)",
	}, []string{"window"})

	progressETA = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_progress_eta_seconds",
		Help: "Estimated seconds until the target is reached (-1 when unknown)",
	})
)

// Config holds tracker configuration.
type Config struct {
	// Target is the number of events the run aims for.
	Target int64

	// Initial is the count already ingested before this run (from the checkpoint).
	Initial int64

	// Interval between periodic snapshots.
	Interval time.Duration
}

// Snapshot is a point-in-time view of progress.
type Snapshot struct {
	Ingested    int64
	Target      int64
	Percent     float64
	Elapsed     time.Duration
	CurrentRate float64
	AverageRate float64
	ETA         time.Duration
	ETAKnown    bool
}

// Tracker accumulates the ingested count and emits periodic snapshots.
type Tracker struct {
	mu        sync.Mutex
	config    Config
	logger    zerolog.Logger
	now       func() time.Time
	started   time.Time
	lastTime  time.Time
	lastCount int64
	total     int64

	running  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a tracker starting at cfg.Initial.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	t := &Tracker{
		config: cfg,
		logger: logger.With().Str("component", "progress").Logger(),
		now:    time.Now,
		total:  cfg.Initial,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()
	t.lastTime = t.started
	t.lastCount = cfg.Initial
	progressEvents.Set(float64(cfg.Initial))
	return t
}

// Add records n newly ingested events.
func (t *Tracker) Add(n int) {
	t.mu.Lock()
	t.total += int64(n)
	total := t.total
	t.mu.Unlock()
	progressEvents.Set(float64(total))
}

// Total returns the cumulative count, including Initial.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Snapshot computes the current view. The current rate covers the time since
// the previous snapshot, so each call starts a new rate window.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsed := now.Sub(t.started)
	sinceLast := now.Sub(t.lastTime)

	s := Snapshot{
		Ingested: t.total,
		Target:   t.config.Target,
		Elapsed:  elapsed,
	}
	if t.config.Target > 0 {
		s.Percent = float64(t.total) * 100 / float64(t.config.Target)
	}
	if sinceLast > 0 {
		s.CurrentRate = float64(t.total-t.lastCount) / sinceLast.Seconds()
	}
	if elapsed > 0 {
		s.AverageRate = float64(t.total-t.config.Initial) / elapsed.Seconds()
	}

	remaining := t.config.Target - t.total
	switch {
	case remaining <= 0:
		s.ETAKnown = true
	case s.AverageRate > 0:
		s.ETA = time.Duration(float64(remaining) / s.AverageRate * float64(time.Second))
		s.ETAKnown = true
	}

	t.lastTime = now
	t.lastCount = t.total

	progressRate.WithLabelValues("current").Set(s.CurrentRate)
	progressRate.WithLabelValues("average").Set(s.AverageRate)
	if s.ETAKnown {
		progressETA.Set(s.ETA.Seconds())
	} else {
		progressETA.Set(-1)
	}
	return s
}

// Start emits a snapshot every Interval until ctx ends or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				t.log(t.Snapshot())
			}
		}
	}()
}

// Stop halts periodic snapshots and logs one final snapshot. Calling it more
// than once has no further effect.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)

		t.mu.Lock()
		running := t.running
		t.mu.Unlock()
		if running {
			<-t.done
		}

		t.log(t.Snapshot())
	})
}

func (t *Tracker) log(s Snapshot) {
	evt := t.logger.Info().
		Int64("ingested", s.Ingested).
		Int64("target", s.Target).
		Float64("pct", round1(s.Percent)).
		Float64("current_rps", round1(s.CurrentRate)).
		Float64("avg_rps", round1(s.AverageRate)).
		Dur("elapsed", s.Elapsed)
	if s.ETAKnown {
		evt = evt.Dur("eta", s.ETA.Round(time.Second))
	} else {
		evt = evt.Str("eta", "unknown")
	}
	evt.Msg("Progress")
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
