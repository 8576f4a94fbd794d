package registry

import (
	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/util"
)

// Snapshot is an immutable view of the loaded steps and their topic
// index. Readers (the event manager) fetch it by cheap reference;
// LockedData publishes a new Snapshot on every mutation rather than
// mutating the one in hand
type Snapshot struct {
	steps      map[string]*api.Step
	topicIndex map[api.Topic][]string
	streams    []api.StreamDecl
	external   util.Set[api.Topic]
}

// Step returns the named step, if loaded
func (s *Snapshot) Step(name string) (*api.Step, bool) {
	step, ok := s.steps[name]
	return step, ok
}

// Steps returns every loaded step
func (s *Snapshot) Steps() []*api.Step {
	out := make([]*api.Step, 0, len(s.steps))
	for _, step := range s.steps {
		out = append(out, step)
	}
	return out
}

// Subscribers returns the names of every step subscribing topic
func (s *Snapshot) Subscribers(topic api.Topic) []string {
	names := s.topicIndex[topic]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Streams returns every declared stream
func (s *Snapshot) Streams() []api.StreamDecl {
	out := make([]api.StreamDecl, len(s.streams))
	copy(out, s.streams)
	return out
}
