// Package logging configures the process-wide zerolog logger and hands out
// component-scoped loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

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

// App is attached to every JSON event so exporter logs can be told apart
// in shared collectors.
const App = "archive-exporter"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches to a console writer for interactive runs.
	Pretty bool

	// Output receives the log stream. Nil means stderr, which keeps stdout
	// free for the run summary.
	Output io.Writer
}

// DefaultConfig returns JSON logs at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// levels maps accepted level names, including the "warning" alias.
var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Setup installs the process-wide logger and returns it. Component loggers
// created afterwards with NewLogger inherit its writer and fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		// Long URLs dominate console lines; keep the run id out of them.
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:           out,
			TimeFormat:    time.Kitchen,
			FieldsExclude: []string{"run_id"},
		}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Str("app", App).Logger()
	}

	log.Logger = logger
	return logger
}

// ValidateLevel reports an error for level names Setup would not honour.
func ValidateLevel(level LogLevel) error {
	if _, ok := levels[strings.ToLower(string(level))]; !ok {
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
	return nil
}

// parseLevel falls back to info for unknown names; config validation
// rejects them before a run starts.
func parseLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[strings.ToLower(string(level))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRun tags every event of logger with the export run id.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Listing page requests (offset, limit)
//   - Pacer waits
//   - Individual HTTP attempts
//
// Info: Normal operation events
//   - Listing complete, item counts
//   - Batch files and archives written
//   - Run summary
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and exhausted retries
//   - Failed items (the run continues)
//   - Empty listings
//
// Error: Error conditions requiring attention
//   - Listing failures
//   - Storage write failures
//   - Configuration errors
//
// Context Fields:
//   - url: request or item URL
//   - status: HTTP status code
//   - attempt: 1-based attempt number
//   - backoff: wait before the next attempt
//   - error_class: failure classification (client, server, rate_limit, network)
//   - index: item position in the listing
//   - file: written object name
//   - run_id: export run identifier
