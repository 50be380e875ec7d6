// Package stroke tracks the phase of the stroke under the pointer,
// independent of dab emission.
package stroke

import "dabflow/internal/input"

// State is the phase of a stroke.
type State int

const (
	StateIdle State = iota
	StateHover
	StateDrawing
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHover:
		return "hover"
	case StateDrawing:
		return "drawing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// StateMachine follows sample phases. It never locks in a terminal state;
// callers Reset it before the next stroke.
type StateMachine struct {
	state State
}

// NewStateMachine returns a machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// Advance applies phase and returns the new state.
func (m *StateMachine) Advance(phase input.Phase) State {
	switch phase {
	case input.PhaseDown:
		m.state = StateDrawing
	case input.PhaseUp:
		m.state = StateEnded
	case input.PhaseHover:
		if m.state != StateDrawing {
			m.state = StateHover
		}
	default:
		if m.state == StateIdle {
			m.state = StateHover
		}
	}
	return m.state
}

// State returns the current state.
func (m *StateMachine) State() State {
	return m.state
}

// Drawing reports whether a stroke is in progress.
func (m *StateMachine) Drawing() bool {
	return m.state == StateDrawing
}

// Reset returns the machine to StateIdle.
func (m *StateMachine) Reset() {
	m.state = StateIdle
}
