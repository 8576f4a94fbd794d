package rpc_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/rpc"
)

// wire connects two Channels back to back, as a worker's stdin/stdout
// pipe would connect the worker side to the parent side
func wire(t *testing.T) (parent, worker *rpc.Channel) {
	t.Helper()
	parentR, workerW := io.Pipe()
	workerR, parentW := io.Pipe()

	parent = rpc.NewChannel(parentW, parentR)
	worker = rpc.NewChannel(workerW, workerR)

	t.Cleanup(func() {
		_ = parent.Close()
		_ = worker.Close()
	})
	return parent, worker
}

func TestCallRoundTrip(t *testing.T) {
	parent, worker := wire(t)

	worker.Handle("state.get", func(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := parent.Call(ctx, "state.get", map[string]string{"key": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestCallPropagatesHandlerError(t *testing.T) {
	parent, worker := wire(t)

	worker.Handle("emit", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, assertError("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := parent.Call(ctx, "emit", nil)
	assert.ErrorContains(t, err, "boom")
}

func TestCallUnknownMethod(t *testing.T) {
	parent, _ := wire(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := parent.Call(ctx, "no.such.method", nil)
	assert.ErrorContains(t, err, "unknown method")
}

func TestCloseFailsPendingCalls(t *testing.T) {
	parent, _ := wire(t)
	_ = parent.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := parent.Call(ctx, "state.get", nil)
	assert.ErrorIs(t, err, rpc.ErrChannelClosed)
}

type assertError string

func (e assertError) Error() string { return string(e) }
