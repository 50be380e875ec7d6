package stamper

import (
	"math"

	"seehuhn.de/go/geom/vec"

	"dabflow/internal/input"
	"dabflow/internal/sampler"
)

const (
	// defaultDtMs stands in for missing or non-increasing timestamps.
	defaultDtMs = 8.0
	// maxStepDtMs caps how far one point may advance the stroke clock.
	maxStepDtMs = 120.0
	// maxCoordinatePx bounds positions on either axis.
	maxCoordinatePx = 1 << 20
	// fallbackSpacingPx replaces unusable spacing values.
	fallbackSpacingPx = 1.0
	maxRampDabs       = 8
)

type anchor struct {
	pos      vec.Vec2
	pressure float64
	t        float64
}

func lerpAnchor(a, b anchor, f float64) anchor {
	return anchor{
		pos:      a.pos.Add(b.pos.Sub(a.pos).Mul(f)),
		pressure: a.pressure + (b.pressure-a.pressure)*f,
		t:        a.t + (b.t-a.t)*f,
	}
}

type attributes struct {
	speed, tiltX, tiltY, rotation float64
}

// Stamper emits dabs for one stroke at a time. It is not safe for
// concurrent use.
type Stamper struct {
	cfg Config
	smp *sampler.Sampler

	started      bool
	finalized    bool
	hasReal      bool
	crossed      bool
	tailConsumed bool

	clockMs    float64
	lastRawT   float64
	hasRawT    bool
	timeAnchor float64

	// segStart is where the next spacing run starts; it only advances when
	// the pointer has moved at least MinMovementPx.
	segStart  anchor
	last      anchor
	attrs     attributes
	direction float64

	lastDab vec.Vec2
	hasDab  bool
	dabs    int
}

// New creates a stamper. Unusable config values fall back to defaults.
func New(cfg Config) *Stamper {
	def := DefaultConfig()
	if !(cfg.MinMovementPx >= 0) || math.IsInf(cfg.MinMovementPx, 0) {
		cfg.MinMovementPx = def.MinMovementPx
	}
	if !(cfg.MaxIntervalMs > 0) || math.IsInf(cfg.MaxIntervalMs, 0) {
		cfg.MaxIntervalMs = def.MaxIntervalMs
	}
	return &Stamper{cfg: cfg, smp: sampler.New()}
}

// Config returns the effective configuration.
func (s *Stamper) Config() Config {
	return s.cfg
}

// BeginStroke discards any previous stroke state.
func (s *Stamper) BeginStroke() {
	s.smp.Reset()
	*s = Stamper{cfg: s.cfg, smp: s.smp, started: true}
}

// Started reports whether a stroke is open.
func (s *Stamper) Started() bool {
	return s.started && !s.finalized
}

// DabCount returns the number of dabs emitted for the current stroke.
func (s *Stamper) DabCount() int {
	return s.dabs
}

// ProcessPoint feeds an untimed point without build-up.
func (s *Stamper) ProcessPoint(x, y, pressure, spacingPx float64) []Dab {
	return s.Process(Input{X: x, Y: y, Pressure: pressure, SpacingPx: spacingPx, TimestampMs: math.NaN()})
}

// Process feeds one stroke point and returns the dabs it produces. The
// first point of a stroke always yields exactly one dab at that point.
func (s *Stamper) Process(in Input) []Dab {
	if !s.started || s.finalized {
		s.BeginStroke()
	}

	spacing := s.spacing(in.SpacingPx)
	s.advanceClock(in.TimestampMs)
	s.attrs = attributes{
		speed:    finiteOr(in.Speed, 0),
		tiltX:    input.ClampTilt(in.TiltX),
		tiltY:    input.ClampTilt(in.TiltY),
		rotation: input.NormalizeRotation(in.Rotation),
	}
	cur := anchor{
		pos:      s.position(in.X, in.Y),
		pressure: input.ClampPressure(in.Pressure),
		t:        s.clockMs,
	}

	var out []Dab
	if !s.hasReal {
		s.hasReal = true
		s.segStart = cur
		s.timeAnchor = cur.t
		out = append(out, s.emit(cur))
	} else {
		out = s.step(cur, spacing, in.BuildUp)
	}
	s.last = cur

	if in.Final && s.hasDab && s.lastDab == cur.pos {
		s.tailConsumed = true
	}
	return out
}

func (s *Stamper) step(cur anchor, spacing float64, buildUp bool) []Dab {
	delta := cur.pos.Sub(s.segStart.pos)
	moved := delta.Length()
	if moved == 0 || moved < s.cfg.MinMovementPx {
		return s.stationary(cur, buildUp)
	}
	s.direction = math.Atan2(delta.Y, delta.X)

	var out []Dab
	from := s.segStart
	if !s.crossed {
		s.crossed = true
		if s.cfg.SmoothStart && s.cfg.MinMovementPx > 0 {
			crossing := lerpAnchor(from, cur, s.cfg.MinMovementPx/moved)
			n := int(math.Ceil(s.cfg.MinMovementPx / spacing))
			n = max(1, min(n, maxRampDabs))
			for i := 1; i <= n; i++ {
				out = append(out, s.emit(lerpAnchor(from, crossing, float64(i)/float64(n))))
			}
			from = crossing
			s.smp.ResetDistance()
		}
	}

	seg := sampler.Segment{
		DistancePx: cur.pos.Sub(from.pos).Length(),
		SpacingPx:  spacing,
	}
	if s.cfg.TimedSpacing {
		seg.DurationMs = s.clockMs - s.timeAnchor
		seg.MaxIntervalMs = s.cfg.MaxIntervalMs
	}
	s.timeAnchor = s.clockMs

	for _, t := range s.smp.Sample(seg) {
		out = append(out, s.emit(lerpAnchor(from, cur, t)))
	}
	s.segStart = cur
	return out
}

func (s *Stamper) stationary(cur anchor, buildUp bool) []Dab {
	if buildUp {
		s.timeAnchor = s.clockMs
		return []Dab{s.emit(cur)}
	}
	if !s.cfg.TimedSpacing {
		return nil
	}
	seg := sampler.Segment{
		DurationMs:    s.clockMs - s.timeAnchor,
		SpacingPx:     1,
		MaxIntervalMs: s.cfg.MaxIntervalMs,
	}
	s.timeAnchor = s.clockMs
	if len(s.smp.Sample(seg)) == 0 {
		return nil
	}
	return []Dab{s.emit(cur)}
}

// Finalize closes the stroke. Unless the stroke's final point already
// produced a dab at the exact last position, it returns one trailing dab
// at the last real point. Subsequent calls return nil.
func (s *Stamper) Finalize() []Dab {
	if !s.started || s.finalized {
		return nil
	}
	s.finalized = true
	if s.tailConsumed || !s.hasReal {
		return nil
	}
	return []Dab{s.emit(s.last)}
}

func (s *Stamper) emit(a anchor) Dab {
	s.lastDab = a.pos
	s.hasDab = true
	s.dabs++
	return Dab{
		X:           a.pos.X,
		Y:           a.pos.Y,
		Pressure:    s.cfg.PressureLUT.Lookup(a.pressure),
		TimestampMs: a.t,
		Speed:       s.attrs.speed,
		Direction:   s.direction,
		TiltX:       s.attrs.tiltX,
		TiltY:       s.attrs.tiltY,
		Rotation:    s.attrs.rotation,
	}
}

func (s *Stamper) spacing(requested float64) float64 {
	if s.cfg.SpacingOverridePx > 0 && !math.IsInf(s.cfg.SpacingOverridePx, 0) {
		return s.cfg.SpacingOverridePx
	}
	if !(requested > 0) || math.IsInf(requested, 0) {
		return fallbackSpacingPx
	}
	return requested
}

func (s *Stamper) position(x, y float64) vec.Vec2 {
	fallback := s.last.pos
	return vec.Vec2{X: clampCoordinate(x, fallback.X), Y: clampCoordinate(y, fallback.Y)}
}

// advanceClock moves the stroke clock forward by the interval since the
// previous timestamp, capped at maxStepDtMs, or by defaultDtMs when that
// interval is unusable.
func (s *Stamper) advanceClock(ts float64) {
	finite := !math.IsNaN(ts) && !math.IsInf(ts, 0)
	if !s.hasReal {
		s.clockMs = 0
		if finite {
			s.clockMs = ts
			s.lastRawT = ts
			s.hasRawT = true
		}
		return
	}

	dt := defaultDtMs
	if finite && s.hasRawT {
		if d := ts - s.lastRawT; d > 0 {
			dt = math.Min(d, maxStepDtMs)
		}
	}
	if finite {
		s.lastRawT = ts
		s.hasRawT = true
	}
	s.clockMs += dt
}

func clampCoordinate(v, fallback float64) float64 {
	return math.Max(-maxCoordinatePx, math.Min(finiteOr(v, fallback), maxCoordinatePx))
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
