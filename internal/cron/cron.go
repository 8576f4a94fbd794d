// Package cron translates a schedule-triggered step's cron expression
// into ticks that directly invoke the step through the executor, using
// robfig/cron for schedule parsing and dispatch.
package cron

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/nullwave/polystep/internal/eventbus"
	"github.com/nullwave/polystep/internal/trace"
	"github.com/nullwave/polystep/pkg/api"
)

// Trigger owns one robfig/cron scheduler and invokes a cron step's
// runner directly on its configured schedule. A cron step is an
// invocation origin, not a topic subscriber, so a tick runs the step
// itself rather than going through the event manager's topic index; any
// emit() the step's worker makes during that run still flows through
// the bus as usual
type Trigger struct {
	sched  *cron.Cron
	runner eventbus.Runner
	logger *slog.Logger
}

// New constructs a cron trigger that runs ticked steps through runner
func New(runner eventbus.Runner, logger *slog.Logger) *Trigger {
	return &Trigger{
		sched:  cron.New(cron.WithSeconds()),
		runner: runner,
		logger: logger,
	}
}

// Register schedules step to fire on its declared cron expression. Every
// tick mints a fresh traceId, since a cron fire is a flow origin, and
// invokes the step with an empty payload
func (t *Trigger) Register(step *api.Step) (cron.EntryID, error) {
	name := step.Name()

	return t.sched.AddFunc(step.Cron.CronExpression, func() {
		traceID := trace.New()
		log := t.logger.With(slog.String("step", name), slog.String("traceId", string(traceID)))

		event := api.Event{
			Topic:   api.Topic("cron." + name),
			TraceID: traceID,
			Flows:   step.Flows(),
		}
		if _, err := t.runner.Run(context.Background(), step, event); err != nil {
			log.Error("cron invocation failed", "error", err)
		}
	})
}

// Start begins running scheduled entries in the background
func (t *Trigger) Start() {
	t.sched.Start()
}

// Stop halts the scheduler and returns a context that is done once any
// in-flight tick has finished
func (t *Trigger) Stop() context.Context {
	return t.sched.Stop()
}
