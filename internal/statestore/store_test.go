package statestore_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/config"
	"github.com/nullwave/polystep/internal/statestore"
	"github.com/nullwave/polystep/pkg/api"
)

func backends(t *testing.T) map[string]statestore.Store {
	t.Helper()

	mr := miniredis.RunT(t)

	file, err := statestore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	redisStore, err := statestore.NewRedisStore(config.StateStoreConfig{
		Host: mr.Host(),
		Port: mustAtoi(t, mr.Port()),
	})
	require.NoError(t, err)

	return map[string]statestore.Store{
		"memory": statestore.NewMemoryStore(),
		"file":   file,
		"remote": redisStore,
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			traceID := api.TraceID("t1")

			require.NoError(t, store.Set(ctx, traceID, "k", json.RawMessage(`"v"`)))
			val, err := store.Get(ctx, traceID, "k")
			require.NoError(t, err)
			assert.JSONEq(t, `"v"`, string(val))
		})
	}
}

func TestGetAbsentKeyReturnsNil(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			val, err := store.Get(context.Background(), api.TraceID("t1"), "missing")
			require.NoError(t, err)
			assert.Nil(t, val)
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			traceID := api.TraceID("t1")

			require.NoError(t, store.Set(ctx, traceID, "k", json.RawMessage(`1`)))
			require.NoError(t, store.Delete(ctx, traceID, "k"))
			require.NoError(t, store.Delete(ctx, traceID, "k"))

			val, err := store.Get(ctx, traceID, "k")
			require.NoError(t, err)
			assert.Nil(t, val)
		})
	}
}

func TestClearIsIdempotentAndScopedToTrace(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "t1", "k", json.RawMessage(`1`)))
			require.NoError(t, store.Set(ctx, "t2", "k", json.RawMessage(`2`)))

			require.NoError(t, store.Clear(ctx, "t1"))
			require.NoError(t, store.Clear(ctx, "t1"))

			v1, err := store.Get(ctx, "t1", "k")
			require.NoError(t, err)
			assert.Nil(t, v1)

			v2, err := store.Get(ctx, "t2", "k")
			require.NoError(t, err)
			assert.JSONEq(t, `2`, string(v2))
		})
	}
}

func TestFlowsDoNotObserveEachOthersState(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "t1", "user", json.RawMessage(`{"id":1}`)))
			require.NoError(t, store.Set(ctx, "t2", "user", json.RawMessage(`{"id":2}`)))

			v1, err := store.Get(ctx, "t1", "user")
			require.NoError(t, err)
			v2, err := store.Get(ctx, "t2", "user")
			require.NoError(t, err)

			assert.NotEqual(t, string(v1), string(v2))
		})
	}
}

func TestGetGroupReturnsAllValuesUnderTrace(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			traceID := api.TraceID("t1")

			require.NoError(t, store.Set(ctx, traceID, "a", json.RawMessage(`1`)))
			require.NoError(t, store.Set(ctx, traceID, "b", json.RawMessage(`2`)))

			values, err := store.GetGroup(ctx, traceID)
			require.NoError(t, err)
			assert.Len(t, values, 2)
		})
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
