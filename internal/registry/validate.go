package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/util"
)

// ValidationReport collects every defect found across a whole batch of
// steps at once, used by the CLI validate subcommand and the
// /engine/validate route where a single step error shouldn't mask the
// rest
type ValidationReport struct {
	StepErrors   map[string]error
	OrphanTopics []api.Topic
}

// OK reports whether the batch is free of step errors and orphan topics
func (r *ValidationReport) OK() bool {
	return len(r.StepErrors) == 0 && len(r.OrphanTopics) == 0
}

// String renders a human-readable report body
func (r *ValidationReport) String() string {
	var b strings.Builder
	names := make([]string, 0, len(r.StepErrors))
	for n := range r.StepErrors {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "%s: %v\n", n, r.StepErrors[n])
	}
	for _, t := range r.OrphanTopics {
		fmt.Fprintf(&b, "orphan topic: %s\n", t)
	}
	return b.String()
}

// Validate checks a batch of steps independently of any LockedData
// instance: each Step.Validate() individually, name uniqueness, and
// that every subscribed topic is produced by some step's emits or
// declared external. It never mutates its inputs
func Validate(steps []*api.Step, externalTopics []api.Topic) *ValidationReport {
	report := &ValidationReport{StepErrors: make(map[string]error)}

	produced := util.SetOf[api.Topic]()
	subscribed := make(map[api.Topic]struct{})
	seenNames := make(map[string]int)

	for _, step := range steps {
		name := step.Name()
		if name == "" {
			name = step.FilePath
		}
		seenNames[name]++

		if err := step.Validate(); err != nil {
			report.StepErrors[name] = err
			continue
		}
		if err := checkSchemaWellFormed(step); err != nil {
			report.StepErrors[name] = err
			continue
		}
		for _, t := range step.Emits() {
			produced.Add(t)
		}
		for _, t := range step.Subscribes() {
			subscribed[t] = struct{}{}
		}
	}

	for name, count := range seenNames {
		if count > 1 {
			report.StepErrors[name] = fmt.Errorf("duplicate step name: %s", name)
		}
	}

	external := util.SetOf(externalTopics...)
	var orphans []api.Topic
	for t := range subscribed {
		if produced.Contains(t) || external.Contains(t) {
			continue
		}
		orphans = append(orphans, t)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	report.OrphanTopics = orphans

	return report
}
