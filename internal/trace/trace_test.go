package trace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullwave/polystep/internal/trace"
)

func TestNewProducesUniqueValidIDs(t *testing.T) {
	a := trace.New()
	b := trace.New()

	assert.NotEqual(t, a, b)
	assert.True(t, trace.Valid(a))
	assert.True(t, trace.Valid(b))
}

func TestValidRejectsMalformed(t *testing.T) {
	assert.False(t, trace.Valid(""))
	assert.False(t, trace.Valid("not-a-uuid"))
}
