package eventbus_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/eventbus"
	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/obslog"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	delay time.Duration
	err   error
}

func (r *recordingRunner) Run(_ context.Context, step *api.Step, _ api.Event) (json.RawMessage, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.calls = append(r.calls, step.Name())
	r.mu.Unlock()
	return nil, r.err
}

func (r *recordingRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func eventStep(name, subscribes string) *api.Step {
	return &api.Step{
		FilePath: name + ".step.py",
		Type:     api.StepTypeEvent,
		Event: &api.EventConfig{
			Name:       name,
			Subscribes: []api.Topic{api.Topic(subscribes)},
		},
	}
}

func TestEmitSchedulesEverySubscriberWithoutWaiting(t *testing.T) {
	reg := registry.New()
	_, err := reg.AddStep(eventStep("send-receipt", "order.created"))
	require.NoError(t, err)
	_, err = reg.AddStep(eventStep("notify-warehouse", "order.created"))
	require.NoError(t, err)

	runner := &recordingRunner{delay: 100 * time.Millisecond}
	bus := eventbus.New(reg, runner, obslog.New("polystep-test", "test", "text"))

	err = bus.Emit(context.Background(), api.Event{Topic: "order.created"}, "")
	require.NoError(t, err)

	assert.Empty(t, runner.names(), "Emit must return before subscribers finish")

	require.Eventually(t, func() bool {
		return len(runner.names()) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestEmitSyncWaitsForEverySubscriber(t *testing.T) {
	reg := registry.New()
	_, err := reg.AddStep(eventStep("send-receipt", "order.created"))
	require.NoError(t, err)

	runner := &recordingRunner{delay: 50 * time.Millisecond}
	bus := eventbus.New(reg, runner, obslog.New("polystep-test", "test", "text"))

	err = bus.EmitSync(context.Background(), api.Event{Topic: "order.created"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"send-receipt"}, runner.names())
}

func TestEmitWithNoSubscribersIsANoop(t *testing.T) {
	reg := registry.New()
	runner := &recordingRunner{}
	bus := eventbus.New(reg, runner, obslog.New("polystep-test", "test", "text"))

	err := bus.Emit(context.Background(), api.Event{Topic: "nothing.listens"}, "")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, runner.names())
}

func TestEmitIgnoresRunnerErrorsAndStillReturnsNil(t *testing.T) {
	reg := registry.New()
	_, err := reg.AddStep(eventStep("send-receipt", "order.created"))
	require.NoError(t, err)

	runner := &recordingRunner{err: assert.AnError}
	bus := eventbus.New(reg, runner, obslog.New("polystep-test", "test", "text"))

	err = bus.EmitSync(context.Background(), api.Event{Topic: "order.created"}, "")
	assert.NoError(t, err)
}
