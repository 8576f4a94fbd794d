// Package trace generates and propagates the trace IDs that scope state,
// stream, and log operations to a single flow instance.
package trace

import (
	"github.com/google/uuid"

	"github.com/nullwave/polystep/pkg/api"
)

// New generates a fresh trace ID, assigned once at the origin of a flow
// (an HTTP request, a cron fire, or a manually emitted event)
func New() api.TraceID {
	return api.TraceID(uuid.NewString())
}

// Valid reports whether id looks like a trace ID this package generated.
// Workers may echo a traceId field on RPC calls; the parent never trusts
// it
func Valid(id api.TraceID) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(string(id))
	return err == nil
}
