// Package input defines raw pointer samples produced by the platform input
// backends, and the helpers those backends use to produce them.
package input

import (
	"errors"
	"fmt"
	"strings"

	"seehuhn.de/go/geom/vec"
)

// Source identifies the input backend that produced a sample.
type Source int

const (
	SourceUnknown      Source = iota
	SourceWinTab              // Wacom WinTab packets (Windows)
	SourceMacNative           // NSEvent tablet events (macOS)
	SourcePointerEvent        // Browser/WebView PointerEvent stream
)

func (s Source) String() string {
	switch s {
	case SourceWinTab:
		return "wintab"
	case SourceMacNative:
		return "macnative"
	case SourcePointerEvent:
		return "pointerevent"
	default:
		return "unknown"
	}
}

// ErrUnknownSource is returned when parsing an unrecognised source name.
var ErrUnknownSource = errors.New("input: unknown source")

// ParseSource parses the wire name of a source.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wintab":
		return SourceWinTab, nil
	case "macnative":
		return SourceMacNative, nil
	case "pointerevent":
		return SourcePointerEvent, nil
	default:
		return SourceUnknown, fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	if s == SourceUnknown {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSource, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	v, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Phase is the contact phase of a sample within its stroke.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseHover         // In proximity, not touching
	PhaseDown          // Contact started
	PhaseMove          // Contact continues
	PhaseUp            // Contact released
)

func (p Phase) String() string {
	switch p {
	case PhaseHover:
		return "hover"
	case PhaseDown:
		return "down"
	case PhaseMove:
		return "move"
	case PhaseUp:
		return "up"
	default:
		return "unknown"
	}
}

// ErrUnknownPhase is returned when parsing an unrecognised phase name.
var ErrUnknownPhase = errors.New("input: unknown phase")

// ParsePhase parses the wire name of a phase.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hover":
		return PhaseHover, nil
	case "down":
		return PhaseDown, nil
	case "move":
		return PhaseMove, nil
	case "up":
		return PhaseUp, nil
	default:
		return PhaseUnknown, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p == PhaseUnknown {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	v, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Sample is one hardware pointer event. Samples are immutable once created
// and are consumed exactly once by the ingress router.
type Sample struct {
	Seq          uint64  `json:"seq"`
	StrokeID     uint64  `json:"stroke_id"`
	PointerID    uint32  `json:"pointer_id"`
	DeviceID     string  `json:"device_id"`
	Source       Source  `json:"source"`
	Phase        Phase   `json:"phase"`
	X            float64 `json:"x_px"`
	Y            float64 `json:"y_px"`
	Pressure     float64 `json:"pressure_0_1"`
	TiltX        float64 `json:"tilt_x_deg"`
	TiltY        float64 `json:"tilt_y_deg"`
	Rotation     float64 `json:"rotation_deg"`
	HostTimeUs   uint64  `json:"host_time_us"`
	DeviceTimeUs *uint64 `json:"device_time_us,omitempty"`
}

// Position returns the sample position in device pixels.
func (s Sample) Position() vec.Vec2 {
	return vec.Vec2{X: s.X, Y: s.Y}
}

// TimestampMs returns the host timestamp in fractional milliseconds.
func (s Sample) TimestampMs() float64 {
	return float64(s.HostTimeUs) / 1000
}

// IsContact reports whether the sample belongs to a pressed stroke.
func (s Sample) IsContact() bool {
	return s.Phase == PhaseDown || s.Phase == PhaseMove || s.Phase == PhaseUp
}
