// Package eventbus implements the event manager (C6): it resolves the
// subscribers of an emitted topic from the step registry's current
// snapshot and fans the event out to the step executor (C7), either
// scheduling invocations without waiting (Emit, used for
// worker-originated emits and webhooks) or waiting for every subscriber
// to finish (EmitSync, for a caller that must observe sub-flow state
// writes on return). API and cron triggers do not go through the bus;
// they run their step through the executor directly.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/obslog"
)

// Runner executes a single step invocation to completion
type Runner interface {
	Run(ctx context.Context, step *api.Step, event api.Event) (json.RawMessage, error)
}

// Bus dispatches emitted events to every step subscribing their topic
type Bus struct {
	registry *registry.LockedData
	runner   Runner
	logger   *slog.Logger
}

// New constructs an event bus bound to registry's snapshots and runner's
// executor
func New(reg *registry.LockedData, runner Runner, logger *slog.Logger) *Bus {
	return &Bus{registry: reg, runner: runner, logger: logger}
}

// Emit resolves event.Topic's subscribers from the current snapshot and
// schedules each concurrently, returning once every invocation has been
// scheduled (not awaited). sourceFilePath identifies the step file that
// produced the emission, for "invalid emit"-style diagnostics; empty for
// externally triggered (API/cron) emissions
func (b *Bus) Emit(ctx context.Context, event api.Event, sourceFilePath string) error {
	subscribers := b.resolve(event)
	for _, step := range subscribers {
		step := step
		go b.invoke(ctx, step, event, sourceFilePath)
	}
	return nil
}

// EmitSync resolves event.Topic's subscribers and blocks until every one
// has completed, for a caller that must observe the sub-flow's state
// writes before returning
func (b *Bus) EmitSync(ctx context.Context, event api.Event, sourceFilePath string) error {
	subscribers := b.resolve(event)

	var wg sync.WaitGroup
	wg.Add(len(subscribers))
	for _, step := range subscribers {
		step := step
		go func() {
			defer wg.Done()
			b.invoke(ctx, step, event, sourceFilePath)
		}()
	}
	wg.Wait()
	return nil
}

func (b *Bus) resolve(event api.Event) []*api.Step {
	snap := b.registry.Snapshot()
	names := snap.Subscribers(event.Topic)
	steps := make([]*api.Step, 0, len(names))
	for _, name := range names {
		if step, ok := snap.Step(name); ok && step.Executable() {
			steps = append(steps, step)
		}
	}
	return steps
}

func (b *Bus) invoke(ctx context.Context, step *api.Step, event api.Event, sourceFilePath string) {
	log := obslog.ForStep(obslog.ForEvent(b.logger, event), step.Name())
	if sourceFilePath != "" {
		log = log.With(slog.String("sourceFile", sourceFilePath))
	}

	if _, err := b.runner.Run(ctx, step, event); err != nil {
		log.Error("step invocation failed", obslog.Error(err))
	}
}
