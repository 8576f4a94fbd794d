package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/pkg/api"
)

func apiStep(name, emits string) *api.Step {
	var decls []api.EmitDecl
	if emits != "" {
		decls = []api.EmitDecl{{Topic: api.Topic(emits)}}
	}
	return &api.Step{
		FilePath: name + ".step.py",
		Type:     api.StepTypeAPI,
		API: &api.APIConfig{
			Name:   name,
			Path:   "/" + name,
			Method: api.MethodPOST,
			Emits:  decls,
		},
	}
}

func eventStep(name string, subscribes, emits string) *api.Step {
	var decls []api.EmitDecl
	if emits != "" {
		decls = []api.EmitDecl{{Topic: api.Topic(emits)}}
	}
	return &api.Step{
		FilePath: name + ".step.py",
		Type:     api.StepTypeEvent,
		Event: &api.EventConfig{
			Name:       name,
			Subscribes: []api.Topic{api.Topic(subscribes)},
			Emits:      decls,
		},
	}
}

func TestAddStepThenSnapshotContainsIt(t *testing.T) {
	d := registry.New()
	_, err := d.AddStep(apiStep("create-order", "order.created"))
	require.NoError(t, err)

	snap := d.Snapshot()
	_, ok := snap.Step("create-order")
	assert.True(t, ok)
}

func TestAddStepDuplicateNameErrors(t *testing.T) {
	d := registry.New()
	_, err := d.AddStep(apiStep("create-order", ""))
	require.NoError(t, err)

	_, err = d.AddStep(apiStep("create-order", ""))
	assert.ErrorIs(t, err, registry.ErrStepExists)
}

func TestRemoveStepMissingErrors(t *testing.T) {
	d := registry.New()
	_, err := d.RemoveStep("nope")
	assert.ErrorIs(t, err, registry.ErrStepNotFound)
}

func TestTopicIndexResolvesSubscribers(t *testing.T) {
	d := registry.New()
	_, err := d.AddStep(apiStep("create-order", "order.created"))
	require.NoError(t, err)
	_, err = d.AddStep(eventStep("send-receipt", "order.created", ""))
	require.NoError(t, err)

	snap := d.Snapshot()
	assert.ElementsMatch(t, []string{"send-receipt"}, snap.Subscribers("order.created"))
}

func TestDiffReportsOrphanTopicUntilProducerLoads(t *testing.T) {
	d := registry.New()
	diff, err := d.AddStep(eventStep("send-receipt", "order.created", ""))
	require.NoError(t, err)
	assert.Contains(t, diff.OrphanTopics, api.Topic("order.created"))
	assert.False(t, diff.IsClean())

	diff, err = d.AddStep(apiStep("create-order", "order.created"))
	require.NoError(t, err)
	assert.True(t, diff.IsClean())
}

func TestDeclareExternalTopicSuppressesOrphan(t *testing.T) {
	d := registry.New()
	d.DeclareExternalTopic("webhook.received")
	diff, err := d.AddStep(eventStep("handle-webhook", "webhook.received", ""))
	require.NoError(t, err)
	assert.True(t, diff.IsClean())
}

func TestValidateBatchCatchesOrphansAndDuplicates(t *testing.T) {
	steps := []*api.Step{
		apiStep("create-order", ""),
		apiStep("create-order", ""),
		eventStep("send-receipt", "order.created", ""),
	}
	report := registry.Validate(steps, nil)
	assert.False(t, report.OK())
	assert.Contains(t, report.StepErrors, "create-order")
	assert.Contains(t, report.OrphanTopics, api.Topic("order.created"))
}

func TestAddStepRejectsMalformedBodySchema(t *testing.T) {
	d := registry.New()
	step := apiStep("create-order", "")
	step.API.BodySchema = []byte(`{"type": 123}`)

	_, err := d.AddStep(step)
	assert.Error(t, err)
}

func TestValidateBatchCatchesMalformedInputSchema(t *testing.T) {
	step := eventStep("send-receipt", "order.created", "")
	step.Event.InputSchema = []byte(`{"type": 123}`)

	report := registry.Validate([]*api.Step{step}, nil)
	assert.False(t, report.OK())
	assert.Contains(t, report.StepErrors, "send-receipt")
}

func TestValidateBatchCleanWhenTopicsBalance(t *testing.T) {
	steps := []*api.Step{
		apiStep("create-order", "order.created"),
		eventStep("send-receipt", "order.created", ""),
	}
	report := registry.Validate(steps, nil)
	assert.True(t, report.OK())
}
