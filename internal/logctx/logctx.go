// Package logctx carries a request-scoped slog.Logger through a context.
package logctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// With returns a context whose logger has args added.
func With(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, loggerKey{}, From(ctx).With(args...))
}

// From returns the logger stored in ctx, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
