// Package ratelimit implements quota tracking and request gating for the events API.
// It monitors the X-RateLimit-Remaining and X-RateLimit-Reset headers so the client
// waits for the quota window to reset instead of running into 429 lockouts.
package ratelimit

import (
	"time"
)

// Response headers read on every API response.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Defaults for the limiter configuration.
const (
	// DefaultLimit is the request budget per quota window.
	DefaultLimit = 10

	// DefaultSafetyBuffer is the remaining-request threshold at which callers wait.
	// At 0 the limiter only waits once the budget is fully spent.
	DefaultSafetyBuffer = 0

	// DefaultMargin is added on top of every computed wait.
	DefaultMargin = 200 * time.Millisecond

	// DefaultMaxWait caps the preemptive wait. Near the end of the dataset the server
	// keeps pushing the reset horizon forward; the cap keeps that from stalling forever.
	DefaultMaxWait = 5 * time.Second

	// DefaultFallbackWait is used after a 429 that carries no Retry-After.
	DefaultFallbackWait = 10 * time.Second
)

// State represents the quota state observed from the most recent response.
// No history is kept: every response overwrites the fields it reports.
type State struct {
	// Limit is the request budget per quota window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window resets.
	// Calculated from the X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// SafetyBuffer is the threshold at or below which callers wait for the reset.
	SafetyBuffer int `json:"safety_buffer"`
}

// NeedsWait returns true if the caller must wait for the window to reset.
func (s State) NeedsWait() bool {
	return s.Remaining <= s.SafetyBuffer
}

// TimeUntilReset returns the duration from now until the window resets.
// Returns 0 if the reset time has already passed.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
