package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_rate_limit_remaining",
		Help: "Requests remaining in the current API quota window",
	})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_rate_limit_waits_total",
		Help: "Total number of rate limit waits by reason",
	}, []string{"reason"})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_rate_limit_wait_seconds",
		Help:    "Time spent waiting on the API quota",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Wait reasons used as metric labels.
const (
	reasonPreemptive = "preemptive"
	reasonRejected   = "rejected"
)

// Config holds the limiter configuration.
type Config struct {
	Limit        int
	SafetyBuffer int

	// Margin is added to every computed wait.
	Margin time.Duration

	// MaxWait caps preemptive waits. It does not apply to 429 rejections.
	MaxWait time.Duration

	// FallbackWait is used for a 429 without Retry-After.
	FallbackWait time.Duration
}

// DefaultConfig returns the limiter defaults.
func DefaultConfig() Config {
	return Config{
		Limit:        DefaultLimit,
		SafetyBuffer: DefaultSafetyBuffer,
		Margin:       DefaultMargin,
		MaxWait:      DefaultMaxWait,
		FallbackWait: DefaultFallbackWait,
	}
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware SleepFunc used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter tracks the API quota and suspends callers when it is spent.
type Limiter struct {
	mu     sync.Mutex
	state  State
	config Config
	logger zerolog.Logger

	now   func() time.Time
	sleep SleepFunc
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source and sleep function (for testing).
func WithClock(now func() time.Time, sleep SleepFunc) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// NewLimiter creates a limiter with a full budget.
func NewLimiter(cfg Config, logger zerolog.Logger, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Margin < 0 {
		cfg.Margin = 0
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.FallbackWait <= 0 {
		cfg.FallbackWait = DefaultFallbackWait
	}

	l := &Limiter{
		config: cfg,
		logger: logger,
		now:    time.Now,
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state = State{
		Limit:        cfg.Limit,
		Remaining:    cfg.Limit,
		ResetAt:      l.now(),
		SafetyBuffer: cfg.SafetyBuffer,
	}
	return l
}

// State returns a snapshot of the current quota state.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// WaitIfNeeded suspends the caller until the quota window resets when the remaining
// budget is at or below the safety buffer. The wait is the time until reset plus the
// margin, capped at MaxWait. It is a no-op otherwise.
func (l *Limiter) WaitIfNeeded(ctx context.Context) error {
	l.mu.Lock()
	state := l.state
	now := l.now()
	sleep := l.sleep
	l.mu.Unlock()

	if !state.NeedsWait() {
		return nil
	}

	wait := state.TimeUntilReset(now) + l.config.Margin
	if wait > l.config.MaxWait {
		wait = l.config.MaxWait
	}

	l.logger.Warn().
		Int("remaining", state.Remaining).
		Time("reset_at", state.ResetAt).
		Dur("wait", wait).
		Msg("API quota exhausted - waiting for window reset")

	rateLimitWaitsTotal.WithLabelValues(reasonPreemptive).Inc()
	rateLimitWaitSeconds.Observe(wait.Seconds())

	return sleep(ctx, wait)
}

// UpdateFromHeaders overwrites the quota state with the values reported by a response.
// Fields that are absent or malformed are left untouched.
func (l *Limiter) UpdateFromHeaders(headers http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := parseIntHeader(headers, HeaderLimit); ok && v > 0 {
		l.state.Limit = v
	}

	if v, ok := parseIntHeader(headers, HeaderRemaining); ok {
		l.state.Remaining = v
		rateLimitRemaining.Set(float64(v))
	}

	if v, ok := parseIntHeader(headers, HeaderReset); ok {
		l.state.ResetAt = l.now().Add(time.Duration(v) * time.Second)
	}

	l.logger.Debug().
		Int("remaining", l.state.Remaining).
		Time("reset_at", l.state.ResetAt).
		Msg("Quota state updated")
}

// OnRateLimitRejection suspends the caller after a 429. It waits for exactly the
// server-specified Retry-After plus the margin, or FallbackWait when the server gave
// no hint. Retrying earlier resets the server-side lockout, so the wait is not capped.
func (l *Limiter) OnRateLimitRejection(ctx context.Context, headers http.Header) error {
	l.mu.Lock()
	now := l.now()
	sleep := l.sleep
	l.mu.Unlock()

	wait := l.config.FallbackWait
	retryAfter, ok := RetryAfter(headers, now)
	if ok {
		wait = retryAfter + l.config.Margin
	}

	l.logger.Warn().
		Bool("retry_after_present", ok).
		Dur("wait", wait).
		Msg("Rate limit hit (429) - waiting before retry")

	rateLimitWaitsTotal.WithLabelValues(reasonRejected).Inc()
	rateLimitWaitSeconds.Observe(wait.Seconds())

	return sleep(ctx, wait)
}

// RetryAfter parses the Retry-After header as delta seconds or an HTTP date.
func RetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(headers.Get(HeaderRetryAfter))
	if raw == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	at, err := http.ParseTime(raw)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func parseIntHeader(headers http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(headers.Get(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
