// Package obslog constructs the structured slog.Logger used throughout
// polystep, and the trace/step attribute convention attached to it at
// each execution boundary.
package obslog

import (
	"log/slog"
	"os"
)

// New constructs a slog.Logger at info level, formatted as JSON unless
// format is "text" (dev-mode pretty printing per the logger protocol)
func New(service, env, format string) *slog.Logger {
	return NewWithLevel(service, env, format, slog.LevelInfo)
}

// NewWithLevel constructs a slog.Logger at the given level
func NewWithLevel(service, env, format string, lvl slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("env", env),
	)
}
