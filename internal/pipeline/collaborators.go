package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"dabflow/internal/ingress"
	"dabflow/internal/input"
	"dabflow/internal/stamper"
)

// BlendMode selects how the renderer composites dabs.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendErase
)

func (m BlendMode) String() string {
	switch m {
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	case BlendErase:
		return "erase"
	default:
		return "normal"
	}
}

// ParseBlendMode parses a blend mode name. The empty string means normal.
func ParseBlendMode(s string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return BlendNormal, nil
	case "multiply":
		return BlendMultiply, nil
	case "screen":
		return BlendScreen, nil
	case "erase":
		return BlendErase, nil
	default:
		return BlendNormal, fmt.Errorf("pipeline: unknown blend mode %q", s)
	}
}

// RenderBatch is the dab output of one processed batch.
type RenderBatch struct {
	Primary   []stamper.Dab
	Secondary []stamper.Dab
	Blend     BlendMode
}

// Renderer consumes dabs. Rendering happens outside the input path; a
// renderer that blocks delays the next batch.
type Renderer interface {
	Render(ctx context.Context, batch RenderBatch) error
}

// BatchRecord summarizes one processed batch for a DiagnosticsSink.
type BatchRecord struct {
	BufferEpoch   uint64
	Samples       int
	Accepted      int
	Dabs          int
	SecondaryDabs int
	Diagnostics   ingress.Diagnostics
}

// DiagnosticsSink aggregates per-batch diagnostics deltas.
type DiagnosticsSink interface {
	Record(ctx context.Context, rec BatchRecord) error
}

// DynamicsMode selects whether dynamics shape emitted dabs.
type DynamicsMode int

const (
	// DynamicsPrimary writes dynamics output into every dab.
	DynamicsPrimary DynamicsMode = iota
	// DynamicsShadow evaluates dynamics without changing dabs.
	DynamicsShadow
	// DynamicsOff skips dynamics entirely.
	DynamicsOff
)

func (m DynamicsMode) String() string {
	switch m {
	case DynamicsShadow:
		return "shadow"
	case DynamicsOff:
		return "off"
	default:
		return "primary"
	}
}

// ParseDynamicsMode parses a dynamics mode name. The empty string means
// primary.
func ParseDynamicsMode(s string) (DynamicsMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary":
		return DynamicsPrimary, nil
	case "shadow":
		return DynamicsShadow, nil
	case "off":
		return DynamicsOff, nil
	default:
		return DynamicsPrimary, fmt.Errorf("pipeline: unknown dynamics mode %q", s)
	}
}

// DynamicsInput is the per-dab state a dynamics function reads.
type DynamicsInput struct {
	Pressure         float64
	TiltX, TiltY     float64
	Rotation         float64
	Direction        float64
	InitialDirection float64
	FadeProgress     float64
}

// Modifiers is the dynamics output applied to a dab.
type Modifiers struct {
	SizePx  float64
	Flow    float64
	Opacity float64
}

// Dynamics shapes dabs from per-dab input. rand returns values in [0,1)
// and is the only source of randomness a Dynamics may use.
type Dynamics interface {
	Apply(in DynamicsInput, rand func() float64) Modifiers
}

// PressureDynamics scales size and opacity with pressure, with optional
// size jitter and a fade over the stroke.
type PressureDynamics struct {
	SizePx         float64
	MinSizeRatio   float64
	SizeCurve      input.PressureCurve
	OpacityCurve   input.PressureCurve
	MinOpacity     float64
	Flow           float64
	SizeJitter     float64
	FadeToMinRatio bool
}

// Apply implements Dynamics.
func (d PressureDynamics) Apply(in DynamicsInput, rand func() float64) Modifiers {
	p := input.ClampPressure(in.Pressure)

	minSize := clamp01(d.MinSizeRatio)
	sizeRatio := minSize + (1-minSize)*d.SizeCurve.Apply(p)
	if d.FadeToMinRatio {
		sizeRatio *= 1 - clamp01(in.FadeProgress)*(1-minSize)
	}
	if d.SizeJitter > 0 && rand != nil {
		sizeRatio *= 1 - clamp01(d.SizeJitter)*rand()
	}

	minOpacity := clamp01(d.MinOpacity)
	return Modifiers{
		SizePx:  math.Max(0, d.SizePx*sizeRatio),
		Flow:    clamp01(d.Flow),
		Opacity: minOpacity + (1-minOpacity)*d.OpacityCurve.Apply(p),
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
