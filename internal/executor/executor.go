// Package executor implements the step executor (C7): given a loaded
// step and an event, it selects a language runner, spawns the worker
// process via the supervisor, serves the worker's RPC calls against the
// state store, stream registry, and event bus using the parent's trace
// context, and resolves with the worker's reported result.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nullwave/polystep/internal/config"
	"github.com/nullwave/polystep/internal/statestore"
	"github.com/nullwave/polystep/internal/streamregistry"
	"github.com/nullwave/polystep/internal/supervisor"
	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/obslog"
)

// ErrNonExecutableStep is returned for NOOP steps, which participate
// only in the topology graph and never spawn a runner
var ErrNonExecutableStep = errors.New("executor: step is non-executable")

// Emitter is the subset of the event bus the executor needs to fan an
// emitted event back out to subscribers. Declared here rather than
// imported from eventbus to avoid an import cycle (eventbus depends on
// Executor to run each subscriber)
type Emitter interface {
	Emit(ctx context.Context, event api.Event, sourceFilePath string) error
}

// Executor runs one step invocation at a time per call, serving every
// RPC the worker makes during its lifetime
type Executor struct {
	runners config.RunnersConfig
	state   statestore.Store
	streams *streamregistry.Registry
	bus     Emitter
	logger  *slog.Logger
}

// New constructs an Executor. bus may be nil until the event bus that
// owns this executor finishes constructing itself; wire it with
// SetEmitter before the first Run
func New(runners config.RunnersConfig, state statestore.Store, streams *streamregistry.Registry, logger *slog.Logger) *Executor {
	return &Executor{runners: runners, state: state, streams: streams, logger: logger}
}

// SetEmitter wires the event bus used to service recursive emit() calls
// made by the worker. Must be called before Run
func (e *Executor) SetEmitter(bus Emitter) {
	e.bus = bus
}

type invocation struct {
	mu     sync.RWMutex
	state  invocationState
	result json.RawMessage
}

// Run spawns step's runner, serves its RPC calls, and blocks until the
// invocation reaches a terminal state
func (e *Executor) Run(ctx context.Context, step *api.Step, event api.Event) (json.RawMessage, error) {
	if !step.Executable() {
		return nil, fmt.Errorf("%w: %s", ErrNonExecutableStep, step.Name())
	}

	spec, err := selectRunner(e.runners, step.FilePath)
	if err != nil {
		return nil, err
	}

	envelopeJSON, err := buildEnvelope(step, event)
	if err != nil {
		return nil, err
	}

	log := obslog.ForStep(obslog.ForEvent(e.logger, event), step.Name())

	inv := &invocation{state: stateSpawning}
	sup := supervisor.New(spec.command, spec.args(step.FilePath, envelopeJSON), nil)

	sup.OnStdout(func(line []byte, isJSON bool) {
		if isJSON {
			log.Info(string(line), "source", "stdout")
		} else {
			log.Info(string(line))
		}
	})
	sup.OnStderr(func(line []byte) {
		log.Error(string(line), "source", "stderr")
	})

	done := make(chan struct{}, 1)
	var (
		finalResult json.RawMessage
		finalErr    error
	)
	finish := func(result json.RawMessage, err error) {
		select {
		case done <- struct{}{}:
			finalResult, finalErr = result, err
		default:
		}
	}

	sup.OnProcessClose(func(code int) {
		if code != 0 {
			inv.transition(stateDoneFailure)
			finish(nil, fmt.Errorf("process exited with code %d", code))
			return
		}
		inv.transition(stateDoneSuccess)
		inv.mu.RLock()
		result := inv.result
		inv.mu.RUnlock()
		finish(result, nil)
	})
	sup.OnProcessError(func(err error) {
		inv.transition(stateDoneFailure)
		finish(nil, err)
	})

	e.registerHandlers(sup, step, event, inv, log)

	if err := sup.Spawn(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = sup.Close() }()
	inv.transition(stateRunning)

	select {
	case <-done:
		return finalResult, finalErr
	case <-ctx.Done():
		_ = sup.Kill()
		inv.transition(stateDoneCancelled)
		return nil, ctx.Err()
	}
}
