package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nullwave/polystep/pkg/api"
)

// FileStore persists the full (traceId, key) document as a single JSON
// file, flushed atomically via write-temp-then-rename so a crash mid-save
// never leaves a half-written document. Suitable for single-process
// persistence across restarts; not safe for multiple processes sharing
// one path
type FileStore struct {
	path string

	mu     sync.Mutex
	traces map[api.TraceID]map[string]json.RawMessage
}

// NewFileStore loads an existing document at path, if any, or starts
// empty
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("statestore: file adapter requires a path")
	}

	fs := &FileStore{
		path:   path,
		traces: make(map[api.TraceID]map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("statestore: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.traces); err != nil {
		return nil, fmt.Errorf("statestore: parsing %s: %w", path, err)
	}
	return fs, nil
}

func (s *FileStore) Get(_ context.Context, traceID api.TraceID, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.traces[traceID]
	if !ok {
		return nil, nil
	}
	return kv[key], nil
}

func (s *FileStore) Set(_ context.Context, traceID api.TraceID, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.traces[traceID]
	if !ok {
		kv = make(map[string]json.RawMessage)
		s.traces[traceID] = kv
	}
	kv[key] = value
	return s.flush()
}

func (s *FileStore) Delete(_ context.Context, traceID api.TraceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kv, ok := s.traces[traceID]; ok {
		delete(kv, key)
	}
	return s.flush()
}

func (s *FileStore) Clear(_ context.Context, traceID api.TraceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, traceID)
	return s.flush()
}

func (s *FileStore) GetGroup(_ context.Context, traceID api.TraceID) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

// flush must be called with s.mu held
func (s *FileStore) flush() error {
	data, err := json.Marshal(s.traces)
	if err != nil {
		return fmt.Errorf("statestore: marshaling document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".statestore-*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: renaming temp file: %w", err)
	}
	return nil
}
