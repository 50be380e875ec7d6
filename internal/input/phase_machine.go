package input

// PhaseOutput is the phase resolved for one native report.
type PhaseOutput struct {
	StrokeID uint64
	Phase    Phase
}

type pointerState struct {
	inContact bool
	strokeID  uint64
}

// PhaseMachine turns per-pointer contact/proximity flags reported by native
// tablet APIs into hover/down/move/up phases, allocating a new stroke id
// each time a pointer lifts.
type PhaseMachine struct {
	nextStrokeID uint64
	pointers     map[uint32]pointerState
}

// NewPhaseMachine creates a phase machine whose first stroke id is 1.
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{
		nextStrokeID: 1,
		pointers:     make(map[uint32]pointerState),
	}
}

func (m *PhaseMachine) allocStrokeID() uint64 {
	id := m.nextStrokeID
	if m.nextStrokeID < ^uint64(0) {
		m.nextStrokeID++
	}
	return id
}

// Reset forgets every pointer and restarts stroke ids at 1.
func (m *PhaseMachine) Reset() {
	m.nextStrokeID = 1
	clear(m.pointers)
}

// Resolve classifies one report. It returns false when the report carries
// no phase (an unknown pointer outside proximity, or a pointer leaving
// proximity without having touched).
func (m *PhaseMachine) Resolve(pointerID uint32, inContact, inProximity bool) (PhaseOutput, bool) {
	state, known := m.pointers[pointerID]
	if !known {
		if !inContact && !inProximity {
			return PhaseOutput{}, false
		}
		state = pointerState{strokeID: m.allocStrokeID()}
		m.pointers[pointerID] = state
	}

	if !inProximity && !inContact {
		if !state.inContact {
			return PhaseOutput{}, false
		}
		m.pointers[pointerID] = pointerState{strokeID: m.allocStrokeID()}
		return PhaseOutput{StrokeID: state.strokeID, Phase: PhaseUp}, true
	}

	var out PhaseOutput
	switch {
	case inContact && state.inContact:
		out = PhaseOutput{StrokeID: state.strokeID, Phase: PhaseMove}
	case inContact:
		state.inContact = true
		out = PhaseOutput{StrokeID: state.strokeID, Phase: PhaseDown}
	case state.inContact:
		out = PhaseOutput{StrokeID: state.strokeID, Phase: PhaseUp}
		state.inContact = false
		state.strokeID = m.allocStrokeID()
	default:
		out = PhaseOutput{StrokeID: state.strokeID, Phase: PhaseHover}
	}

	m.pointers[pointerID] = state
	return out, true
}
