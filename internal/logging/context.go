package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// FromContext returns the logger stored in ctx, or fallback when there is
// none. A nil fallback means the default logger.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return OrDefault(fallback)
}

// WithContext returns a new context carrying logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}
