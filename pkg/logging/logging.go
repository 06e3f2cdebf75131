// Package logging provides structured logging for ibu using zerolog.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	human  atomic.Bool
)

func init() {
	// Default to JSON logging at info level
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger to write to stderr.
func Init(debug, humanOutput bool) {
	InitWriter(os.Stderr, debug, humanOutput)
}

// InitWriter configures the global logger to write to w. Debug lowers the
// level to debug. Human output switches to a console writer and adds
// human-readable companion fields (e.g. "bytes_h") to completion events.
func InitWriter(w io.Writer, debug, humanOutput bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if humanOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	human.Store(humanOutput)

	l := zerolog.New(w).With().Timestamp().Logger()
	logger = &l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// IsHuman reports whether human-readable companion fields are enabled.
func IsHuman() bool {
	return human.Load()
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger allows overriding the global logger (useful for testing).
func SetLogger(l zerolog.Logger) {
	logger = &l
}
