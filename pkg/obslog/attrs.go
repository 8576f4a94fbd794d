package obslog

import (
	"log/slog"

	"github.com/nullwave/polystep/pkg/api"
)

// Error renders err as a slog attribute, or a no-op attribute if err is nil
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// ForEvent derives a logger tagged with the trace and topic of e
func ForEvent(base *slog.Logger, e api.Event) *slog.Logger {
	return base.With(
		slog.String("traceId", string(e.TraceID)),
		slog.String("topic", string(e.Topic)),
	)
}

// ForStep derives a logger further tagged with the invoked step's name
func ForStep(base *slog.Logger, stepName string) *slog.Logger {
	return base.With(slog.String("step", stepName))
}
