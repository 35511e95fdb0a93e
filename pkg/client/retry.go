package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Sternrassler/event-ingest/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for the bounded retry of transient failures.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter is the fraction of randomness applied to each backoff (0.2 = ±20%).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration: the initial request
// plus three retries after 1s, 2s and 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

// backoff returns the wait before retry number attempt (1-based): InitialBackoff ×
// Multiplier^(attempt-1), capped at MaxBackoff, before jitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	multiplier := c.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	d := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= multiplier
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

func (c RetryConfig) withJitter(d time.Duration) time.Duration {
	if c.Jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 - c.Jitter + rand.Float64()*2*c.Jitter))
}

// retryWithBackoff executes fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. Retryable classes are decided by shouldRetry.
func retryWithBackoff(ctx context.Context, config RetryConfig, sleep ratelimit.SleepFunc, logger zerolog.Logger, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	var errClass ErrorClass

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errClass = classOf(err)

		if errors.Is(err, ErrContextCancelled) || !shouldRetry(errClass) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(errClass)).Inc()

		wait := config.withJitter(config.backoff(attempt))
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Transient failure - retrying after backoff")

		if err := sleep(ctx, wait); err != nil {
			logger.Warn().
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
	logger.Error().
		Str("error_class", string(errClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
