package input

import (
	"fmt"
	"math"
	"strings"
)

// PressureCurve maps normalized pressure onto an output response.
type PressureCurve int

const (
	CurveLinear PressureCurve = iota // 1:1
	CurveSoft                        // easier light pressure
	CurveHard                        // requires more pressure
	CurveSCurve                      // soft at both extremes
)

func (c PressureCurve) String() string {
	switch c {
	case CurveSoft:
		return "soft"
	case CurveHard:
		return "hard"
	case CurveSCurve:
		return "s-curve"
	default:
		return "linear"
	}
}

// ParsePressureCurve parses a curve name. The empty string means linear.
func ParsePressureCurve(s string) (PressureCurve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return CurveLinear, nil
	case "soft":
		return CurveSoft, nil
	case "hard":
		return CurveHard, nil
	case "s-curve", "scurve":
		return CurveSCurve, nil
	default:
		return CurveLinear, fmt.Errorf("input: unknown pressure curve %q", s)
	}
}

// Apply evaluates the curve at p, clamping p into [0,1] first.
func (c PressureCurve) Apply(p float64) float64 {
	p = ClampPressure(p)
	switch c {
	case CurveSoft:
		return math.Sqrt(p)
	case CurveHard:
		return p * p
	case CurveSCurve:
		return p * p * (3 - 2*p)
	default:
		return p
	}
}

// DefaultLUTSize is the number of entries in a pressure table.
const DefaultLUTSize = 256

// PressureLUT is a sampled pressure response, looked up with linear
// interpolation between entries.
type PressureLUT struct {
	table []float64
}

// NewPressureLUT samples curve into a table of size entries (minimum 2).
func NewPressureLUT(curve PressureCurve, size int) *PressureLUT {
	if size < 2 {
		size = 2
	}
	table := make([]float64, size)
	for i := range table {
		table[i] = curve.Apply(float64(i) / float64(size-1))
	}
	return &PressureLUT{table: table}
}

// Lookup returns the response for p. A nil table is the identity.
func (l *PressureLUT) Lookup(p float64) float64 {
	p = ClampPressure(p)
	if l == nil || len(l.table) < 2 {
		return p
	}
	pos := p * float64(len(l.table)-1)
	i := int(pos)
	if i >= len(l.table)-1 {
		return l.table[len(l.table)-1]
	}
	frac := pos - float64(i)
	return l.table[i] + (l.table[i+1]-l.table[i])*frac
}

// PressureSmoother averages pressure over a sliding window. The first value
// seen fills the whole window so a stroke does not start with a spike.
type PressureSmoother struct {
	window []float64
	next   int
	sum    float64
	primed bool
}

// NewPressureSmoother creates a smoother over size samples (minimum 1).
func NewPressureSmoother(size int) *PressureSmoother {
	if size < 1 {
		size = 1
	}
	return &PressureSmoother{window: make([]float64, size)}
}

// Smooth feeds p and returns the window average.
func (s *PressureSmoother) Smooth(p float64) float64 {
	if !s.primed {
		for i := range s.window {
			s.window[i] = p
		}
		s.sum = p * float64(len(s.window))
		s.primed = true
		return p
	}
	s.sum -= s.window[s.next]
	s.window[s.next] = p
	s.sum += p
	s.next = (s.next + 1) % len(s.window)
	return s.sum / float64(len(s.window))
}

// Reset forgets all history; the next value primes the window again.
func (s *PressureSmoother) Reset() {
	s.next = 0
	s.sum = 0
	s.primed = false
}
