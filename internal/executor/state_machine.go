package executor

import "github.com/nullwave/polystep/pkg/util"

// invocationState is one step invocation's lifecycle stage
type invocationState string

const (
	stateSpawning      invocationState = "spawning"
	stateRunning       invocationState = "running"
	stateDoneSuccess   invocationState = "DONE-SUCCESS"
	stateDoneFailure   invocationState = "DONE-FAILURE"
	stateDoneCancelled invocationState = "DONE-CANCELLED"
)

// invocationTransitions encodes the legal edges of a single step
// invocation: spawning -> running -> one of the terminal DONE-* states.
// No handler may fire once a terminal state is reached
var invocationTransitions = util.StateTransitions[invocationState]{
	stateSpawning:      util.SetOf(stateRunning, stateDoneFailure, stateDoneCancelled),
	stateRunning:       util.SetOf(stateDoneSuccess, stateDoneFailure, stateDoneCancelled),
	stateDoneSuccess:   util.SetOf[invocationState](),
	stateDoneFailure:   util.SetOf[invocationState](),
	stateDoneCancelled: util.SetOf[invocationState](),
}

func (e *invocation) transition(to invocationState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !invocationTransitions.CanTransition(e.state, to) {
		return false
	}
	e.state = to
	return true
}

func (e *invocation) terminal() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return invocationTransitions.IsTerminal(e.state)
}
