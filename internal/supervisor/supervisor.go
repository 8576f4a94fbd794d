// Package supervisor spawns a language-runner subprocess, wires its
// stdio to an RPC channel, and reports the process's lifecycle back to
// the step executor.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"sync"

	"github.com/nullwave/polystep/internal/rpc"
)

type (
	// Supervisor owns a single worker process and the RPC channel bound
	// to its stdio
	Supervisor struct {
		command string
		args    []string
		env     []string

		cmd     *exec.Cmd
		channel *rpc.Channel
		stdin   io.WriteCloser

		pendingHandlers map[string]rpc.Handler

		onStdout       func(line []byte, isJSON bool)
		onStderr       func(line []byte)
		onProcessClose func(code int)
		onProcessError func(err error)

		mu     sync.Mutex
		closed bool
	}
)

var (
	// ErrExecutableNotFound is reported when the runner command cannot be
	// located, mapping to the executor's "Runner-not-found" error class
	ErrExecutableNotFound = errors.New("executable not found")
	// ErrAlreadySpawned is returned by Spawn if called more than once
	ErrAlreadySpawned = errors.New("supervisor: process already spawned")
	// ErrNotSpawned is returned by methods that require a running process
	ErrNotSpawned = errors.New("supervisor: process not spawned")
)

// New constructs a Supervisor for the given command/args/env. Nothing is
// started until Spawn is called
func New(command string, args, env []string) *Supervisor {
	return &Supervisor{
		command:         command,
		args:            args,
		env:             env,
		pendingHandlers: make(map[string]rpc.Handler),
	}
}

// Handler registers a parent-side RPC method handler. May be called
// before or after Spawn: handlers registered before Spawn are applied to
// the channel as soon as it exists; any request that still beats
// registration is buffered by the channel itself (bounded)
func (s *Supervisor) Handler(method string, h rpc.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		s.channel.Handle(method, h)
		return
	}
	s.pendingHandlers[method] = h
}

// OnStdout registers the stdout classifier callback. isJSON reports
// whether the line parsed as JSON
func (s *Supervisor) OnStdout(cb func(line []byte, isJSON bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStdout = cb
}

// OnStderr registers the stderr callback; stderr is always plain text
func (s *Supervisor) OnStderr(cb func(line []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStderr = cb
}

// OnProcessClose registers the callback invoked when the process exits
// with code 0 (success) or nonzero (failure)
func (s *Supervisor) OnProcessClose(cb func(code int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProcessClose = cb
}

// OnProcessError registers the callback invoked when waiting on a spawned
// process fails without an exit status. Spawn failures are returned by
// Spawn itself and never reach this callback
func (s *Supervisor) OnProcessError(cb func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProcessError = cb
}

// Spawn starts the child process and wires its stdio to an RPC channel.
// It resolves once the pipes are attached, not once the child has
// produced any output
func (s *Supervisor) Spawn(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return ErrAlreadySpawned
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	if len(s.env) > 0 {
		cmd.Env = append(cmd.Environ(), s.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrExecutableNotFound, s.command)
		}
		return err
	}

	s.cmd = cmd
	s.stdin = stdin

	channel := rpc.NewChannel(stdin, stdout)
	channel.OnUnrecognized = func(line []byte) {
		s.mu.Lock()
		cb := s.onStdout
		s.mu.Unlock()
		if cb != nil {
			cb(trimNewline(line), classify(bytes.TrimSpace(line)))
		}
	}
	for method, h := range s.pendingHandlers {
		channel.Handle(method, h)
	}
	s.pendingHandlers = nil
	s.channel = channel
	s.mu.Unlock()

	go s.streamStderr(stderr)
	go s.wait()

	return nil
}

// Send invokes a worker-side method. Symmetric with Handler; unused by
// the current protocol since every method is parent-implemented
func (s *Supervisor) Send(ctx context.Context, method string, params any) (any, error) {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return nil, ErrNotSpawned
	}
	return ch.Call(ctx, method, params)
}

// Kill terminates the process immediately and tears down the channel
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Close tears down handler registrations and releases the RPC channel.
// It does not kill the process; callers that want to terminate a still
// running worker should call Kill first
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.channel != nil {
		return s.channel.Close()
	}
	return nil
}

func (s *Supervisor) streamStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.mu.Lock()
		cb := s.onStderr
		s.mu.Unlock()
		if cb != nil {
			cb(scanner.Bytes())
		}
	}
}

func (s *Supervisor) wait() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	onClose := s.onProcessClose
	onErr := s.onProcessError
	s.mu.Unlock()

	if err == nil {
		if onClose != nil {
			onClose(0)
		}
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if onClose != nil {
			onClose(exitErr.ExitCode())
		}
		return
	}

	if onErr != nil {
		onErr(err)
	}
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound)
	}
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

func trimNewline(line []byte) []byte {
	return bytes.TrimRight(line, "\n")
}
