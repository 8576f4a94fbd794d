package api

import (
	"encoding/json"
	"log/slog"
)

type (
	// Event is a single emission routed by the event bus: a topic, an
	// opaque payload, and the trace context it carries forward unchanged
	Event struct {
		Topic   Topic
		Data    json.RawMessage
		TraceID TraceID
		Flows   []FlowLabel
		Logger  *slog.Logger
	}

	// EmitRequest is what a worker sends over the RPC channel to emit an
	// event. It carries only topic and data; any traceId or flows a worker
	// sends are dropped on decode and the parent injects its own, so a
	// worker cannot forge either
	EmitRequest struct {
		Topic Topic           `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
)

// WithLogger returns a copy of the event tagged with a derived logger
func (e Event) WithLogger(l *slog.Logger) Event {
	e.Logger = l
	return e
}
