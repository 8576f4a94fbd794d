package rpc

import (
	"encoding/json"

	"github.com/nullwave/polystep/pkg/api"
)

// encodeFrame serializes a frame as a single line of JSON, newline
// terminated. Frames are exchanged newline-delimited rather than with a
// 4-byte length prefix; this composes with the line-oriented stdio
// already used elsewhere in the runtime
func encodeFrame(f api.Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

// decodeFrame parses one JSON object into a frame
func decodeFrame(raw json.RawMessage) (api.Frame, error) {
	var f api.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return api.Frame{}, err
	}
	return f, nil
}
