// Package statestore implements the flow-scoped (traceId, key) -> JSON
// store backing the state.* RPC methods, with pluggable in-memory, file,
// and remote backends.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nullwave/polystep/internal/config"
	"github.com/nullwave/polystep/pkg/api"
)

// Store is the abstract interface over the (traceId, key) namespace.
// Get returns (nil, nil) for an absent key; Set is last-write-wins;
// Delete is idempotent; Clear removes every key under a trace and is
// itself idempotent
type Store interface {
	Get(ctx context.Context, traceID api.TraceID, key string) (json.RawMessage, error)
	Set(ctx context.Context, traceID api.TraceID, key string, value json.RawMessage) error
	Delete(ctx context.Context, traceID api.TraceID, key string) error
	Clear(ctx context.Context, traceID api.TraceID) error
	GetGroup(ctx context.Context, traceID api.TraceID) ([]json.RawMessage, error)
}

// New constructs the backend selected by cfg.Adapter
func New(cfg config.StateStoreConfig) (Store, error) {
	switch cfg.Adapter {
	case config.AdapterMemory, "":
		return NewMemoryStore(), nil
	case config.AdapterFile:
		return NewFileStore(cfg.Path)
	case config.AdapterRemote:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("statestore: unknown adapter %q", cfg.Adapter)
	}
}
