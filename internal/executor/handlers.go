package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nullwave/polystep/internal/supervisor"
	"github.com/nullwave/polystep/pkg/api"
)

type stateKeyParams struct {
	Key string `json:"key"`
}

type stateSetParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type streamItemParams struct {
	GroupID string `json:"groupId"`
	ID      string `json:"id"`
}

type streamSetParams struct {
	GroupID string          `json:"groupId"`
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
}

type streamGroupParams struct {
	GroupID string `json:"groupId"`
}

type streamQueryParams struct {
	GroupID string `json:"groupId"`
	ID      string `json:"id"`
	Path    string `json:"path"`
}

// registerHandlers installs the full set of parent-side RPC methods a
// worker may call for the duration of one invocation: state.*,
// streams.<name>.*, and emit. Every call here runs with the parent's own
// trace context, never the worker's
func (e *Executor) registerHandlers(sup *supervisor.Supervisor, step *api.Step, event api.Event, inv *invocation, log *slog.Logger) {
	sup.Handler("result", func(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
		inv.mu.Lock()
		inv.result = params
		inv.mu.Unlock()
		return nil, nil
	})

	sup.Handler("emit", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var req api.EmitRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		if !step.EmitsTopic(req.Topic) {
			log.Warn("invalid emit", "step", step.Name(), "topic", req.Topic)
			return nil, nil
		}
		if e.bus == nil {
			return nil, nil
		}
		downstream := api.Event{
			Topic:   req.Topic,
			Data:    req.Data,
			TraceID: event.TraceID,
			Flows:   event.Flows,
		}
		if err := e.bus.Emit(ctx, downstream, step.FilePath); err != nil {
			log.Error("emit dispatch failed", "topic", req.Topic, "error", err)
		}
		return nil, nil
	})

	sup.Handler("state.get", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p stateKeyParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return e.state.Get(ctx, event.TraceID, p.Key)
	})

	sup.Handler("state.set", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p stateSetParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, e.state.Set(ctx, event.TraceID, p.Key, p.Value)
	})

	sup.Handler("state.delete", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p stateKeyParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, e.state.Delete(ctx, event.TraceID, p.Key)
	})

	sup.Handler("state.clear", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, e.state.Clear(ctx, event.TraceID)
	})

	sup.Handler("state.getGroup", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		values, err := e.state.GetGroup(ctx, event.TraceID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(values)
	})

	for _, name := range step.Streams() {
		e.registerStreamHandlers(sup, name)
	}
}

func (e *Executor) registerStreamHandlers(sup *supervisor.Supervisor, name string) {
	prefix := fmt.Sprintf("streams.%s.", name)

	sup.Handler(prefix+"get", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p streamItemParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return e.streams.Get(ctx, name, p.GroupID, p.ID)
	})

	sup.Handler(prefix+"set", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p streamSetParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return e.streams.Set(ctx, name, p.GroupID, p.ID, p.Data)
	})

	sup.Handler(prefix+"delete", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p streamItemParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, e.streams.Delete(ctx, name, p.GroupID, p.ID)
	})

	sup.Handler(prefix+"getGroup", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p streamGroupParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		values, err := e.streams.GetGroup(ctx, name, p.GroupID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(values)
	})

	sup.Handler(prefix+"query", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		var p streamQueryParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return e.streams.Query(ctx, name, p.GroupID, p.ID, p.Path)
	})
}
