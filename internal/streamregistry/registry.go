// Package streamregistry implements per-named-stream CRUD with change
// notifications pushed to live subscribers, distinct from flow state.
package streamregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/util"
)

type (
	// Registry holds every declared stream and its live item storage and
	// subscriber set
	Registry struct {
		mu      sync.RWMutex
		streams map[string]*namedStream
	}

	namedStream struct {
		decl        api.StreamDecl
		schema      *gojsonschema.Schema
		items       *util.PathTree[json.RawMessage]
		subscribers map[*Subscriber]struct{}
		mu          sync.Mutex
	}
)

var (
	ErrStreamNotDeclared = errors.New("streamregistry: stream not declared")
	ErrStreamExists       = errors.New("streamregistry: stream already declared")
)

// New constructs an empty stream registry
func New() *Registry {
	return &Registry{streams: make(map[string]*namedStream)}
}

// Declare registers a named stream's schema at load time. Declaring the
// same name twice is an error; steps are re-validated and re-declared as
// a unit on hot reload
func (r *Registry) Declare(decl api.StreamDecl) error {
	if err := decl.Validate(); err != nil {
		return err
	}
	schema, err := compileSchema(decl.Schema)
	if err != nil {
		return fmt.Errorf("%s: %w", decl.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[decl.Name]; exists {
		return fmt.Errorf("%w: %s", ErrStreamExists, decl.Name)
	}
	r.streams[decl.Name] = &namedStream{
		decl:        decl,
		schema:      schema,
		items:       util.NewPathTree[json.RawMessage](),
		subscribers: make(map[*Subscriber]struct{}),
	}
	return nil
}

// Undeclare removes a stream and disconnects its subscribers, used on
// hot reload when a step that owned the stream is removed
func (r *Registry) Undeclare(name string) {
	r.mu.Lock()
	s, ok := r.streams[name]
	if ok {
		delete(r.streams, name)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	for sub := range s.subscribers {
		sub.Close()
	}
	s.mu.Unlock()
}

func (r *Registry) lookup(name string) (*namedStream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotDeclared, name)
	}
	return s, nil
}

// Get returns the item at (groupId, id), or nil if absent
func (r *Registry) Get(_ context.Context, stream, groupID, id string) (json.RawMessage, error) {
	s, err := r.lookup(stream)
	if err != nil {
		return nil, err
	}
	val, _ := s.items.Get([]string{groupID, id})
	return val, nil
}

// Set stores data at (groupId, id) and pushes the mutation to every
// matching subscriber
func (r *Registry) Set(_ context.Context, stream, groupID, id string, data json.RawMessage) (json.RawMessage, error) {
	s, err := r.lookup(stream)
	if err != nil {
		return nil, err
	}
	if err := validateAgainst(s.schema, data); err != nil {
		return nil, err
	}
	s.items.Insert([]string{groupID, id}, data)

	item := api.StreamItem{
		Key:  api.StreamKey{StreamName: stream, GroupID: groupID, ID: id},
		Data: data,
	}
	s.mu.Lock()
	for sub := range s.subscribers {
		sub.notify(item)
	}
	s.mu.Unlock()

	return data, nil
}

// Delete removes the item at (groupId, id) and notifies subscribers with
// a nil payload
func (r *Registry) Delete(_ context.Context, stream, groupID, id string) error {
	s, err := r.lookup(stream)
	if err != nil {
		return err
	}
	s.items.Remove([]string{groupID, id})

	item := api.StreamItem{
		Key: api.StreamKey{StreamName: stream, GroupID: groupID, ID: id},
	}
	s.mu.Lock()
	for sub := range s.subscribers {
		sub.notify(item)
	}
	s.mu.Unlock()

	return nil
}

// Query extracts a single field at path from the item at (groupId, id)
// without unmarshaling the whole payload. Returns (nil, nil) if the item
// is absent or the path has no match
func (r *Registry) Query(_ context.Context, stream, groupID, id, path string) (json.RawMessage, error) {
	s, err := r.lookup(stream)
	if err != nil {
		return nil, err
	}
	val, ok := s.items.Get([]string{groupID, id})
	if !ok {
		return nil, nil
	}
	result := gjson.GetBytes(val, path)
	if !result.Exists() {
		return nil, nil
	}
	return json.RawMessage(result.Raw), nil
}

// GetGroup returns every item currently stored under groupId
func (r *Registry) GetGroup(_ context.Context, stream, groupID string) ([]json.RawMessage, error) {
	s, err := r.lookup(stream)
	if err != nil {
		return nil, err
	}
	return s.items.Values([]string{groupID}), nil
}

// Subscribe registers a live subscriber for a group (id == "") or a
// single item. The caller must pass the returned subscriber to Unsubscribe
// when the external connection disconnects
func (r *Registry) Subscribe(stream, groupID, id string) (*Subscriber, error) {
	s, err := r.lookup(stream)
	if err != nil {
		return nil, err
	}
	sub := newSubscriber(stream, groupID, id)
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	return sub, nil
}

// Unsubscribe detaches a subscriber from its stream and closes it
func (r *Registry) Unsubscribe(sub *Subscriber) {
	s, err := r.lookup(sub.StreamName)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	sub.Close()
}
