// Package logging configures the zerolog logger shared by the catalog client.
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
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// Field names shared by every component.
const (
	FieldComponent = "component"
	FieldFetchID   = "fetch_id"
	FieldArtistID  = "artist_id"
	FieldRequestID = "request_id"
)

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// parseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger for a component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// WithFetch tags logger with a fetch correlation id and, when set, the artist.
func WithFetch(logger zerolog.Logger, fetchID, artistID string) zerolog.Logger {
	ctx := logger.With().Str(FieldFetchID, fetchID)
	if artistID != "" {
		ctx = ctx.Str(FieldArtistID, artistID)
	}
	return ctx.Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request flow (endpoint, path)
//   - Retry backoff decisions
//   - Per album type progress and conflicting album metadata
//   - Request gate waits
//
// Info: Normal operation events
//   - Requests that succeeded after a retry
//   - Album collection and catalog fetch summaries
//   - Token refreshes
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Web API error responses (429, 5xx, 4xx)
//   - Retry budget exhausted
//   - Failed album type queries, batch chunks or track pages
//   - Reported totals that differ from received items
//
// Error: Error conditions requiring attention
//   - Token provider failures
//   - Catalog fetches that stopped early
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting component (spotify-client, retry, catalog, server)
//   - endpoint: Web API endpoint template
//   - status: HTTP status code
//   - kind: Error kind (transient, rate_limited, permanent)
//   - attempt: Attempt number, starting at 1
//   - backoff: Wait before the next attempt
//   - artist_id, album_id, playlist_id: Entity being fetched
//   - album_type: Album type query
//   - fetch_id: Correlation id of one catalog fetch
//   - request_id: Correlation id of one HTTP request to the server
