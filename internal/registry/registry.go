// Package registry holds the mutable set of loaded steps and derives the
// topic subscriber index from it, publishing an immutable Snapshot on
// every change so readers never observe a partially-applied mutation.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/util"
)

var (
	ErrStepExists   = errors.New("registry: step already loaded")
	ErrStepNotFound = errors.New("registry: step not loaded")
)

// LockedData is the locked store of every step known to the host. All
// mutations go through AddStep/RemoveStep/UpdateStep, each of which
// validates the incoming step (if any), rebuilds the topic index, and
// swaps in a fresh Snapshot
type LockedData struct {
	mu       sync.RWMutex
	steps    map[string]*api.Step
	streams  map[string]api.StreamDecl
	external util.Set[api.Topic]
	snapshot *Snapshot
}

// New constructs an empty registry
func New() *LockedData {
	d := &LockedData{
		steps:    make(map[string]*api.Step),
		streams:  make(map[string]api.StreamDecl),
		external: util.SetOf[api.Topic](),
	}
	d.rebuild()
	return d
}

// DeclareExternalTopic marks topic as a valid entry point even though no
// loaded step emits it (an API route or cron trigger that injects
// directly onto the bus). Subscribers to undeclared, non-external topics
// fail validation
func (d *LockedData) DeclareExternalTopic(topic api.Topic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.external.Add(topic)
	d.rebuild()
}

// AddStep loads a new step. Its declared name (from the variant config)
// must be unique
func (d *LockedData) AddStep(step *api.Step) (*Diff, error) {
	if err := step.Validate(); err != nil {
		return nil, err
	}
	if err := checkSchemaWellFormed(step); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	name := step.Name()
	if _, exists := d.steps[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrStepExists, name)
	}

	before := d.snapshot
	d.steps[name] = step
	d.rebuild()
	return diff(before, d.snapshot, []string{name}, nil), nil
}

// UpdateStep replaces an already-loaded step in place, used on hot
// reload when a step's source file changes
func (d *LockedData) UpdateStep(step *api.Step) (*Diff, error) {
	if err := step.Validate(); err != nil {
		return nil, err
	}
	if err := checkSchemaWellFormed(step); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	name := step.Name()
	if _, exists := d.steps[name]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}

	before := d.snapshot
	d.steps[name] = step
	d.rebuild()
	return diff(before, d.snapshot, []string{name}, nil), nil
}

// RemoveStep unloads a step by name
func (d *LockedData) RemoveStep(name string) (*Diff, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.steps[name]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}

	before := d.snapshot
	delete(d.steps, name)
	d.rebuild()
	return diff(before, d.snapshot, nil, []string{name}), nil
}

// Snapshot returns the current immutable view. Safe to hold onto across
// subsequent mutations - it will simply go stale
func (d *LockedData) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// GetStreams returns every stream registered through DeclareStream
func (d *LockedData) GetStreams() []api.StreamDecl {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.StreamDecl, 0, len(d.streams))
	for _, s := range d.streams {
		out = append(out, s)
	}
	return out
}

// DeclareStream registers a stream decl surfaced by the loader
func (d *LockedData) DeclareStream(decl api.StreamDecl) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams[decl.Name] = decl
	d.rebuild()
}

// rebuild recomputes the topic index and publishes a fresh Snapshot.
// Caller must hold d.mu
func (d *LockedData) rebuild() {
	topicIndex := make(map[api.Topic][]string)
	for name, step := range d.steps {
		for _, topic := range step.Subscribes() {
			topicIndex[topic] = append(topicIndex[topic], name)
		}
	}

	streams := make([]api.StreamDecl, 0, len(d.streams))
	for _, s := range d.streams {
		streams = append(streams, s)
	}

	external := util.SetOf[api.Topic]()
	for t := range d.external {
		external.Add(t)
	}

	d.snapshot = &Snapshot{
		steps:      cloneSteps(d.steps),
		topicIndex: topicIndex,
		streams:    streams,
		external:   external,
	}
}

func cloneSteps(in map[string]*api.Step) map[string]*api.Step {
	out := make(map[string]*api.Step, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
