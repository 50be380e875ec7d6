// Package stamper turns a stream of stroke points into brush dabs.
//
// A Stamper follows one stroke at a time: BeginStroke, any number of
// Process calls, then Finalize. It never returns errors; non-finite or
// out-of-range inputs are clamped so a bad packet cannot stall input.
package stamper

import "dabflow/internal/input"

// Dab is one stamped brush impression.
type Dab struct {
	X           float64 `json:"x_px"`
	Y           float64 `json:"y_px"`
	Pressure    float64 `json:"pressure_0_1"`
	TimestampMs float64 `json:"timestamp_ms"`
	Speed       float64 `json:"speed_px_ms,omitempty"`
	Direction   float64 `json:"direction_rad,omitempty"`
	TiltX       float64 `json:"tilt_x_deg,omitempty"`
	TiltY       float64 `json:"tilt_y_deg,omitempty"`
	Rotation    float64 `json:"rotation_deg,omitempty"`

	// Filled in when dynamics are applied before rendering.
	SizePx  float64 `json:"size_px,omitempty"`
	Flow    float64 `json:"flow_01,omitempty"`
	Opacity float64 `json:"opacity_01,omitempty"`
}

// Config parameterizes a Stamper.
type Config struct {
	// MinMovementPx is the distance the pointer must travel from the last
	// emission point before spacing-based dabs are produced.
	MinMovementPx float64
	// SmoothStart ramps position and pressure up to the first threshold
	// crossing instead of jumping straight to it.
	SmoothStart bool
	// TimedSpacing also emits a dab every MaxIntervalMs of held time.
	TimedSpacing  bool
	MaxIntervalMs float64
	// PressureLUT shapes dab pressure; nil is linear.
	PressureLUT *input.PressureLUT
	// SpacingOverridePx, when positive, replaces the per-point spacing.
	SpacingOverridePx float64
}

// DefaultConfig returns the stamper defaults.
func DefaultConfig() Config {
	return Config{
		MinMovementPx: 3,
		SmoothStart:   true,
		MaxIntervalMs: 16,
	}
}

// Input is one stroke point handed to the stamper.
type Input struct {
	X, Y        float64
	Pressure    float64
	SpacingPx   float64
	TimestampMs float64

	// Per-point attributes copied onto emitted dabs.
	Speed    float64
	TiltX    float64
	TiltY    float64
	Rotation float64

	// BuildUp emits a dab even when the pointer has not moved.
	BuildUp bool
	// Final marks the stroke's last real point.
	Final bool
}
