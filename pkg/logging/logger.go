// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
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

	// Service, if set, is attached to every entry.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ParseLevel validates a configured level name.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.level())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// level maps l onto zerolog; unknown names log at info.
func (l LogLevel) level() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		if parsed, err := ParseLevel(string(l)); err == nil && parsed != l {
			return parsed.level()
		}
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Batch splitting and per-batch merge counts
//   - Conditional requests and ETag cache lookups
//   - Guard state reads
//
// Info: Normal operation events
//   - Completed fetches
//   - 304 Not Modified responses
//   - Activities not found
//   - Metrics server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Failed or undecodable secondary batches (parents left unenriched)
//   - Items skipped for enrichment because of an unknown id
//   - Throttling signals and rate limit trips
//   - ETag cache errors (fetch continues unconditionally)
//
// Error: Error conditions requiring attention
//   - Native ids matching no platform format
//   - Guard store failures
//   - Configuration errors
//
// Context Fields:
//   - platform: Adapter name (graph, photo, relay)
//   - request_id: Per-fetch correlation id
//   - scope: list or item
//   - kind: Secondary kind (replies, reactions, shares)
//   - batch: Secondary batch index
//   - status_code: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, redirect, network)
//   - etag: ETag value for conditional requests
//   - duration: Request or fetch duration
