package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/loader"
	"github.com/nullwave/polystep/internal/registry"
)

func writeStep(t *testing.T, dir, name, ext, manifest string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".step."+ext), []byte("# handler"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".step.json"), []byte(manifest), 0o644))
}

func TestDiscoverFindsStepsAcrossExtensions(t *testing.T) {
	dir := t.TempDir()
	writeStep(t, dir, "create-order", "py", `{
		"type": "api",
		"api": {"name": "create-order", "path": "/orders", "method": "POST", "emits": [{"topic": "order.created"}]}
	}`)
	writeStep(t, dir, "send-receipt", "js", `{
		"type": "event",
		"event": {"name": "send-receipt", "subscribes": ["order.created"]}
	}`)

	steps, errs := loader.Discover(dir)
	assert.Empty(t, errs)
	assert.Len(t, steps, 2)
}

func TestDiscoverReportsMissingManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.step.py"), []byte("# handler"), 0o644))

	steps, errs := loader.Discover(dir)
	assert.Empty(t, steps)
	require.Len(t, errs, 1)
}

func TestDiscoverIgnoresNonStepFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.py"), []byte("# not a step"), 0o644))

	steps, errs := loader.Discover(dir)
	assert.Empty(t, steps)
	assert.Empty(t, errs)
}

func TestLoadAllPopulatesRegistryAndReportsErrorsSeparately(t *testing.T) {
	dir := t.TempDir()
	writeStep(t, dir, "create-order", "py", `{
		"type": "api",
		"api": {"name": "create-order", "path": "/orders", "method": "POST"}
	}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.step.rb"), []byte("# handler"), 0o644))

	reg := registry.New()
	diffs, errs := loader.LoadAll(dir, reg)
	require.Len(t, diffs, 1)
	require.Len(t, errs, 1)

	snap := reg.Snapshot()
	_, ok := snap.Step("create-order")
	assert.True(t, ok)
}

func TestDiscoverStreamsFindsDeclarations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "order-status.stream.json"), []byte(`{"name": "order-status"}`), 0o644))

	decls, errs := loader.DiscoverStreams(dir)
	assert.Empty(t, errs)
	require.Len(t, decls, 1)
	assert.Equal(t, "order-status", decls[0].Name)
}

func TestDiscoverStreamsRejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.stream.json"), []byte(`{}`), 0o644))

	decls, errs := loader.DiscoverStreams(dir)
	assert.Empty(t, decls)
	require.Len(t, errs, 1)
}
