// Package logctx carries a zerolog logger through context.Context.
//
// Callers attach an enriched logger once and every function below picks it
// up with FromContext:
//
//	ctx = logctx.WithStr(ctx, "path", path)
//	log := logctx.FromContext(ctx)
//
// When the context carries no logger, the global logger from pkg/logging is
// used, so output follows whatever logging.Init configured.
package logctx

import (
	"context"

	"github.com/eunmann/ibu/pkg/logging"
	"github.com/rs/zerolog"
)

// loggerKey is the private context key type.
type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the global logger.
// It never returns a zero-value logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt returns a context whose logger has the int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}

// WithWorker tags the logger with a parallel worker index.
func WithWorker(ctx context.Context, worker int) context.Context {
	return WithInt(ctx, "worker", worker)
}
