package api

import "encoding/json"

type (
	// FrameType discriminates a request frame from its response
	FrameType string

	// Frame is the newline-delimited JSON object exchanged over a worker's
	// stdio. IDs are monotonically increasing within a worker process
	Frame struct {
		Type   FrameType       `json:"type"`
		ID     int64           `json:"id"`
		Method string          `json:"method,omitempty"`
		Params json.RawMessage `json:"params,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
		Error  string          `json:"error,omitempty"`
	}

	// StreamRef is a stream declaration passed to a worker in its
	// invocation envelope so it knows which streams.<name>.* methods it
	// may call
	StreamRef struct {
		Name string `json:"name"`
	}

	// Envelope is the JSON payload passed to a runner on the command
	// line: invocation data, trace context, flow list, and stream
	// declarations
	Envelope struct {
		Data              json.RawMessage `json:"data"`
		Flows             []FlowLabel     `json:"flows"`
		TraceID           TraceID         `json:"traceId"`
		ContextInFirstArg bool            `json:"contextInFirstArg"`
		Streams           []StreamRef     `json:"streams"`
	}
)

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
)

// NewRequest builds a request frame for the given id/method/params
func NewRequest(id int64, method string, params json.RawMessage) Frame {
	return Frame{Type: FrameRequest, ID: id, Method: method, Params: params}
}

// NewResponse builds a successful response frame
func NewResponse(id int64, result json.RawMessage) Frame {
	return Frame{Type: FrameResponse, ID: id, Result: result}
}

// NewErrorResponse builds a failed response frame
func NewErrorResponse(id int64, msg string) Frame {
	return Frame{Type: FrameResponse, ID: id, Error: msg}
}

// IsError reports whether a response frame carries an error
func (f Frame) IsError() bool {
	return f.Type == FrameResponse && f.Error != ""
}
