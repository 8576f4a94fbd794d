package statestore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nullwave/polystep/pkg/api"
)

// MemoryStore is a process-local, non-persistent backend. Each trace gets
// its own key map; one lock guards all of them, so concurrent handlers in
// unrelated flows serialize on it
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[api.TraceID]map[string]json.RawMessage
}

// NewMemoryStore constructs an empty in-memory state store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traces: make(map[api.TraceID]map[string]json.RawMessage),
	}
}

func (s *MemoryStore) Get(_ context.Context, traceID api.TraceID, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kv, ok := s.traces[traceID]
	if !ok {
		return nil, nil
	}
	return kv[key], nil
}

func (s *MemoryStore) Set(_ context.Context, traceID api.TraceID, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.traces[traceID]
	if !ok {
		kv = make(map[string]json.RawMessage)
		s.traces[traceID] = kv
	}
	kv[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, traceID api.TraceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kv, ok := s.traces[traceID]; ok {
		delete(kv, key)
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, traceID api.TraceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, traceID)
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, traceID api.TraceID) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kv, ok := s.traces[traceID]
	if !ok {
		return nil, nil
	}
	values := make([]json.RawMessage, 0, len(kv))
	for _, v := range kv {
		values = append(values, v)
	}
	return values, nil
}
