package streamregistry_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/streamregistry"
	"github.com/nullwave/polystep/pkg/api"
)

func TestSetThenGet(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	ctx := context.Background()
	_, err := r.Set(ctx, "widgets", "g1", "i1", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)

	val, err := r.Get(ctx, "widgets", "g1", "i1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(val))
}

func TestGetUndeclaredStreamErrors(t *testing.T) {
	r := streamregistry.New()
	_, err := r.Get(context.Background(), "nope", "g1", "i1")
	assert.ErrorIs(t, err, streamregistry.ErrStreamNotDeclared)
}

func TestDeclareTwiceErrors(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))
	err := r.Declare(api.StreamDecl{Name: "widgets"})
	assert.ErrorIs(t, err, streamregistry.ErrStreamExists)
}

func TestGroupSubscriberReceivesMutation(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	sub, err := r.Subscribe("widgets", "g1", "")
	require.NoError(t, err)
	defer r.Unsubscribe(sub)

	_, err = r.Set(context.Background(), "widgets", "g1", "i1", json.RawMessage(`1`))
	require.NoError(t, err)

	select {
	case item := <-sub.Receive():
		assert.Equal(t, "i1", item.Key.ID)
		assert.JSONEq(t, `1`, string(item.Data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestItemSubscriberIgnoresOtherItems(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	sub, err := r.Subscribe("widgets", "g1", "i1")
	require.NoError(t, err)
	defer r.Unsubscribe(sub)

	ctx := context.Background()
	_, err = r.Set(ctx, "widgets", "g1", "other", json.RawMessage(`1`))
	require.NoError(t, err)
	_, err = r.Set(ctx, "widgets", "g1", "i1", json.RawMessage(`2`))
	require.NoError(t, err)

	select {
	case item := <-sub.Receive():
		assert.Equal(t, "i1", item.Key.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}

	select {
	case item := <-sub.Receive():
		t.Fatalf("unexpected second notification: %+v", item)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGetGroupReturnsAllItems(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	ctx := context.Background()
	_, _ = r.Set(ctx, "widgets", "g1", "a", json.RawMessage(`1`))
	_, _ = r.Set(ctx, "widgets", "g1", "b", json.RawMessage(`2`))

	values, err := r.GetGroup(ctx, "widgets", "g1")
	require.NoError(t, err)
	assert.Len(t, values, 2)
}

func TestDeclareRejectsMalformedSchema(t *testing.T) {
	r := streamregistry.New()
	err := r.Declare(api.StreamDecl{Name: "widgets", Schema: json.RawMessage(`{"type": 123}`)})
	assert.Error(t, err)
}

func TestSetRejectsItemViolatingSchema(t *testing.T) {
	r := streamregistry.New()
	schema := json.RawMessage(`{"type": "object", "required": ["n"], "properties": {"n": {"type": "number"}}}`)
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets", Schema: schema}))

	ctx := context.Background()
	_, err := r.Set(ctx, "widgets", "g1", "i1", json.RawMessage(`{"n": "not a number"}`))
	assert.ErrorIs(t, err, streamregistry.ErrSchemaViolation)

	_, err = r.Set(ctx, "widgets", "g1", "i1", json.RawMessage(`{"n": 1}`))
	assert.NoError(t, err)
}

func TestQueryExtractsFieldWithoutFullUnmarshal(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	ctx := context.Background()
	_, err := r.Set(ctx, "widgets", "g1", "i1", json.RawMessage(`{"status": "done", "meta": {"n": 3}}`))
	require.NoError(t, err)

	val, err := r.Query(ctx, "widgets", "g1", "i1", "meta.n")
	require.NoError(t, err)
	assert.JSONEq(t, `3`, string(val))
}

func TestQueryReturnsNilForMissingItem(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	val, err := r.Query(context.Background(), "widgets", "g1", "missing", "status")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestUndeclareClosesSubscribers(t *testing.T) {
	r := streamregistry.New()
	require.NoError(t, r.Declare(api.StreamDecl{Name: "widgets"}))

	sub, err := r.Subscribe("widgets", "g1", "")
	require.NoError(t, err)

	r.Undeclare("widgets")

	_, ok := <-sub.Receive()
	assert.False(t, ok)
}
