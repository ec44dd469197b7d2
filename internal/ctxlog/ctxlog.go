// Package ctxlog provides a context key for safely passing a slog.Logger
// instance through context.Context.
package ctxlog

import (
	"context"
	"log/slog"
)

// key is an unexported type to prevent collisions with context keys from other packages.
type key struct{}

// loggerKey is the key for the slog.Logger in a context.Context.
var loggerKey = key{}

// WithLogger returns a new context with the provided logger embedded.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the slog.Logger from a context. If no logger is
// found, it returns the default global logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// Channel returns a context whose logger carries an extra "channel" segment.
// Nested channels are joined with '-', so a mount inside the socket server
// logs as "socket-<id>".
func Channel(ctx context.Context, name string) (context.Context, *slog.Logger) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, ok := ctx.Value(channelKey{}).(channel)
	if !ok {
		parent = channel{base: FromContext(ctx)}
	}
	next := channel{name: name, base: parent.base}
	if parent.name != "" {
		next.name = parent.name + "-" + name
	}
	logger := next.base.With("channel", next.name)
	ctx = context.WithValue(ctx, channelKey{}, next)
	return WithLogger(ctx, logger), logger
}

type channelKey struct{}

// channel remembers the logger that existed before the first Channel call so
// nested channels replace the attribute instead of repeating it.
type channel struct {
	name string
	base *slog.Logger
}
