// Package lifecycle tracks whether a session is accepting input,
// generating output, idle, or terminated.
package lifecycle

import (
	"sync"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// State is a session lifecycle state.
type State string

const (
	StateIdle             State = "idle"
	StateGenerating       State = "generating"
	StateAwaitingFeedback State = "awaiting_feedback"
	// StateTerminated is absorbing: no further transitions are accepted
	// and subsequent inbound events are informational only.
	StateTerminated State = "terminated"
)

// Machine is the session lifecycle state machine. It consumes delivered
// messages, status values, and viewer actions; all methods are safe for
// concurrent use, though events for one session are expected to arrive
// serialized.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine creates a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// SeedTerminated initializes the machine from a stored session that
// already ended.
func (m *Machine) SeedTerminated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateTerminated
}

// ViewerSubmitted records that the viewer sent a message: a fresh
// prompt from idle, or a feedback response that lets generation resume.
func (m *Machine) ViewerSubmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle, StateAwaitingFeedback:
		m.state = StateGenerating
	}
}

// MessageDelivered records a delivered transcript message. An outgoing
// message flagged isFeedback blocks generation on a viewer response; an
// outgoing non-feedback message completes the current response.
func (m *Machine) MessageDelivered(msg *types.Message) {
	if msg == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateTerminated {
		return
	}
	if msg.Incoming {
		// Mirrors ViewerSubmitted for messages echoed back by the room.
		if m.state == StateIdle || m.state == StateAwaitingFeedback {
			m.state = StateGenerating
		}
		return
	}
	if msg.IsFeedback {
		m.state = StateAwaitingFeedback
		return
	}
	if msg.Message.ChunkID != "" {
		// Mid-stream fragment: generation continues.
		m.state = StateGenerating
		return
	}
	m.state = StateIdle
}

// ApplyStatus folds a status event into the machine. Only the terminal
// status affects the state; unknown values are the caller's to drop.
func (m *Machine) ApplyStatus(status types.SessionStatus) {
	if status == types.StatusTerminated {
		m.Terminate()
	}
}

// Terminate moves the machine to its terminal state.
func (m *Machine) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateTerminated
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Terminated reports whether the machine reached its terminal state.
func (m *Machine) Terminated() bool {
	return m.State() == StateTerminated
}

// StopVisible reports whether the cancellation affordance should be
// shown: it appears while generating or blocked on feedback and is
// withdrawn everywhere else, including after termination.
func (m *Machine) StopVisible() bool {
	switch m.State() {
	case StateGenerating, StateAwaitingFeedback:
		return true
	}
	return false
}

// Busy is the derived predicate that suppresses viewer input and shows
// the busy indicator: true while nothing has arrived yet or while the
// latest message is viewer-authored (the system owes a response), false
// once the latest message is an outgoing reply — including feedback
// requests, which need the input enabled to answer.
func Busy(latest *types.Message) bool {
	if latest == nil {
		return true
	}
	return latest.Incoming
}
