package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/util"
)

// Diff summarizes one registry mutation: which step names were added or
// removed, and any topics left without a declared producer afterward.
// The run command logs the printable form for every step it loads so
// operators can see what changed
type Diff struct {
	Added        []string
	Removed      []string
	OrphanTopics []api.Topic
}

// String renders the diff the way a reload log line would
func (d *Diff) String() string {
	var b strings.Builder
	for _, n := range d.Added {
		fmt.Fprintf(&b, "+ %s\n", n)
	}
	for _, n := range d.Removed {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	for _, t := range d.OrphanTopics {
		fmt.Fprintf(&b, "! orphan topic: %s\n", t)
	}
	return b.String()
}

// IsClean reports whether the diff found no orphan topics
func (d *Diff) IsClean() bool {
	return len(d.OrphanTopics) == 0
}

func diff(before, after *Snapshot, added, removed []string) *Diff {
	d := &Diff{Added: added, Removed: removed}
	d.OrphanTopics = orphanTopics(after)
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	_ = before
	return d
}

func orphanTopics(s *Snapshot) []api.Topic {
	produced := util.SetOf[api.Topic]()
	for _, step := range s.steps {
		for _, t := range step.Emits() {
			produced.Add(t)
		}
	}

	var orphans []api.Topic
	for topic := range s.topicIndex {
		if produced.Contains(topic) || s.external.Contains(topic) {
			continue
		}
		orphans = append(orphans, topic)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	return orphans
}
