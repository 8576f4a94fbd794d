// Package rpc implements the bidirectional channel described by the
// worker protocol: newline-delimited JSON frames exchanged over a
// worker's stdin/stdout, with a pending-request table keyed by frame ID.
//
// The parent is the server for the methods a worker calls, the terminal
// result included: it receives "request" frames and sends "response"
// frames back. Call lets the parent invoke a worker-side method the same
// way. Any stdout line that
// does not parse as a recognized frame is handed to OnUnrecognized so
// the process supervisor can classify it as a log line instead.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/nullwave/polystep/pkg/api"
)

type (
	// Handler answers a request frame sent by the worker
	Handler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

	// Channel is one side of the worker RPC protocol, bound to a single
	// worker process's stdin (writer) and stdout (reader)
	Channel struct {
		w  *bufio.Writer
		wm sync.Mutex

		nextID int64

		pendingMu sync.Mutex
		pending   map[int64]chan api.Frame

		handlersMu sync.RWMutex
		handlers   map[string]Handler

		// bufMu guards requests that arrive for a method with no handler
		// registered yet. Buffering is bounded
		bufMu            sync.Mutex
		bufferedByMethod map[string][]api.Frame
		totalBuffered    int

		// OnUnrecognized receives raw stdout lines that do not parse as
		// a protocol frame, so the supervisor can classify them as
		// structured or plain-text log lines
		OnUnrecognized func(line []byte)

		closed atomic.Bool
		done   chan struct{}
	}
)

// maxBufferedRequests bounds how many not-yet-handled requests a channel
// holds before it starts rejecting them with ErrUnknownMethod
const maxBufferedRequests = 64

var (
	// ErrChannelClosed is returned by Call and Send once Close has run
	ErrChannelClosed = errors.New("rpc: channel closed")
	// ErrUnknownMethod is returned to a worker requesting an unregistered method
	ErrUnknownMethod = errors.New("rpc: unknown method")
	// ErrProtocolViolation marks a malformed frame or an RPC arriving after
	// the worker has already sent a result — the channel must be closed
	// and the worker killed
	ErrProtocolViolation = errors.New("rpc: protocol violation")
)

// NewChannel constructs a channel over a worker's stdin (w) and stdout (r)
func NewChannel(w io.Writer, r io.Reader) *Channel {
	c := &Channel{
		w:                bufio.NewWriter(w),
		pending:          make(map[int64]chan api.Frame),
		handlers:         make(map[string]Handler),
		bufferedByMethod: make(map[string][]api.Frame),
		done:             make(chan struct{}),
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

// Handle registers a parent-side method handler. Handlers registered
// before the worker sends its first request are invoked immediately on
// arrival; there is no separate "ready" gate because the channel starts
// reading as soon as it's constructed
func (c *Channel) Handle(method string, h Handler) {
	c.handlersMu.Lock()
	c.handlers[method] = h
	c.handlersMu.Unlock()

	c.bufMu.Lock()
	buffered := c.bufferedByMethod[method]
	delete(c.bufferedByMethod, method)
	c.totalBuffered -= len(buffered)
	c.bufMu.Unlock()

	for _, frame := range buffered {
		go c.invoke(h, frame)
	}
}

// Call invokes a worker-side method and blocks for its response. Symmetric
// with the worker calling into the parent; unused by the current set of
// protocol methods (all of which run parent-side) but kept so a future
// parent-initiated method composes without a channel redesign
func (c *Channel) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := atomic.AddInt64(&c.nextID, 1)
	wait := make(chan api.Frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = wait
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(api.NewRequest(id, method, raw)); err != nil {
		return nil, err
	}

	select {
	case resp := <-wait:
		if resp.IsError() {
			return nil, errors.New(resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

// Close tears down the channel. Pending Calls fail with ErrChannelClosed
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- api.NewErrorResponse(id, ErrChannelClosed.Error())
	}
	c.pendingMu.Unlock()

	return nil
}

func (c *Channel) readLoop(r *bufio.Reader) {
	defer func() {
		if c.closed.CompareAndSwap(false, true) {
			close(c.done)
		}
	}()

	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			c.handleLine(line)
		}
		if err != nil {
			return
		}
	}
}

func (c *Channel) handleLine(line []byte) {
	frame, err := decodeFrame(line)
	if err != nil || (frame.Type != api.FrameRequest && frame.Type != api.FrameResponse) {
		if c.OnUnrecognized != nil {
			c.OnUnrecognized(line)
		}
		return
	}

	switch frame.Type {
	case api.FrameResponse:
		c.resolvePending(frame)
	case api.FrameRequest:
		go c.dispatchRequest(frame)
	}
}

func (c *Channel) resolvePending(frame api.Frame) {
	c.pendingMu.Lock()
	wait, ok := c.pending[frame.ID]
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	wait <- frame
}

func (c *Channel) dispatchRequest(frame api.Frame) {
	c.handlersMu.RLock()
	h, ok := c.handlers[frame.Method]
	c.handlersMu.RUnlock()

	if ok {
		c.invoke(h, frame)
		return
	}

	c.bufMu.Lock()
	if c.totalBuffered >= maxBufferedRequests {
		c.bufMu.Unlock()
		_ = c.writeFrame(api.NewErrorResponse(frame.ID,
			fmt.Errorf("%w: %s", ErrUnknownMethod, frame.Method).Error()))
		return
	}
	c.bufferedByMethod[frame.Method] = append(c.bufferedByMethod[frame.Method], frame)
	c.totalBuffered++
	c.bufMu.Unlock()
}

func (c *Channel) invoke(h Handler, frame api.Frame) {
	result, err := h(context.Background(), frame.Params)
	if err != nil {
		_ = c.writeFrame(api.NewErrorResponse(frame.ID, err.Error()))
		return
	}
	_ = c.writeFrame(api.NewResponse(frame.ID, result))
}

func (c *Channel) writeFrame(f api.Frame) error {
	body, err := encodeFrame(f)
	if err != nil {
		return err
	}

	c.wm.Lock()
	defer c.wm.Unlock()
	if _, err := c.w.Write(body); err != nil {
		return err
	}
	return c.w.Flush()
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
