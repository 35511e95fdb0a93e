// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is attached to every entry when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "event-ingest",
	}
}

// Setup builds the process logger and installs it as the zerolog global.
// The level is applied to the logger itself, so loggers derived from it with
// NewLogger inherit it.
func Setup(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown values fall back to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger from the global one with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Per-page detail
//   - Page fetched (cursor, next_cursor, events, has_more)
//   - Batch written (batch, inserted)
//   - Quota state updated from headers
//
// Info: Normal operation events
//   - Pass start and target reached
//   - Periodic progress snapshots
//   - Migrations applied, server startup/shutdown
//
// Warn: Recoverable conditions, forward progress continues
//   - Preemptive quota waits and 429 rejections
//   - Cursor expiry (pagination restarts from the beginning)
//   - 5xx and network retries
//   - Premature termination (stream ended below target)
//
// Error: Conditions that abort the run
//   - Retries exhausted, authentication failures, malformed responses
//   - Store or checkpoint failures
//   - Configuration errors
//
// Context Fields:
//   - component: emitting component (events-client, paginator, worker, ...)
//   - run_id: orchestrator run identifier
//   - cursor / next_cursor: pagination position
//   - events_ingested / target: checkpoint count and goal
//   - status / error_class: HTTP status and classification
//   - wait / backoff: suspension durations
