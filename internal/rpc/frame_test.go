package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullwave/polystep/pkg/api"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := api.NewRequest(3, "state.get", []byte(`{"key":"x"}`))

	body, err := encodeFrame(f)
	assert.NoError(t, err)
	assert.Equal(t, byte('\n'), body[len(body)-1])

	decoded, err := decodeFrame(body[:len(body)-1])
	assert.NoError(t, err)
	assert.Equal(t, f, decoded)
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := decodeFrame([]byte("not json"))
	assert.Error(t, err)
}
