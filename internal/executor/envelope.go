package executor

import (
	"encoding/json"

	"github.com/nullwave/polystep/pkg/api"
)

// buildEnvelope constructs the invocation envelope handed to the worker
// process as its final argv entry. contextInFirstArg toggles the
// handler signature between (data, ctx) and (ctx) for cron/NOOP-style
// steps that receive no payload
func buildEnvelope(step *api.Step, event api.Event) (string, error) {
	streams := make([]api.StreamRef, 0, len(step.Streams()))
	for _, name := range step.Streams() {
		streams = append(streams, api.StreamRef{Name: name})
	}

	env := api.Envelope{
		Data:              event.Data,
		Flows:             event.Flows,
		TraceID:           event.TraceID,
		ContextInFirstArg: step.Type == api.StepTypeCron || step.Type == api.StepTypeNoop,
		Streams:           streams,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
