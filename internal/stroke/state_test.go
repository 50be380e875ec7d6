package stroke

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dabflow/internal/input"
)

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name   string
		phases []input.Phase
		want   State
	}{
		{"initial", nil, StateIdle},
		{"hover from idle", []input.Phase{input.PhaseHover}, StateHover},
		{"move from idle", []input.Phase{input.PhaseMove}, StateHover},
		{"down forces drawing", []input.Phase{input.PhaseDown}, StateDrawing},
		{"hover keeps drawing", []input.Phase{input.PhaseDown, input.PhaseHover}, StateDrawing},
		{"move keeps drawing", []input.Phase{input.PhaseDown, input.PhaseMove}, StateDrawing},
		{"up ends", []input.Phase{input.PhaseDown, input.PhaseMove, input.PhaseUp}, StateEnded},
		{"up without down ends", []input.Phase{input.PhaseUp}, StateEnded},
		{"hover after end", []input.Phase{input.PhaseDown, input.PhaseUp, input.PhaseHover}, StateHover},
		{"move after end stays ended", []input.Phase{input.PhaseDown, input.PhaseUp, input.PhaseMove}, StateEnded},
		{"down after end", []input.Phase{input.PhaseUp, input.PhaseDown}, StateDrawing},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewStateMachine()
			for _, p := range tc.phases {
				m.Advance(p)
			}
			assert.Equal(t, tc.want, m.State())
		})
	}
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, StateDrawing, m.Advance(input.PhaseDown))
	assert.True(t, m.Drawing())
	m.Reset()
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, "idle", m.State().String())
}
