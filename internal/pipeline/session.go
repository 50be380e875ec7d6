// Package pipeline wires the stroke ingestion chain for one canvas: the
// ingress router, the stroke state machine, the freehand smoother, the
// speed estimator and the dab stamper. Rendering, dynamics and diagnostics
// aggregation are injected collaborators.
//
// A Session is single-writer: callers serialize ProcessBatch calls.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"dabflow/internal/ingress"
	"dabflow/internal/input"
	"dabflow/internal/metrics"
	"dabflow/internal/smoothing"
	"dabflow/internal/speed"
	"dabflow/internal/stamper"
	"dabflow/internal/stroke"
)

// Options configures a Session.
type Options struct {
	Stamper   stamper.Config
	DualBrush *stamper.Config
	SpacingPx float64
	BuildUp   bool

	SmoothingSamples int
	// PressureWindow averages pressure over this many samples; values
	// below 2 disable pressure smoothing.
	PressureWindow int
	// FadeLengthPx is the stroke length over which FadeProgress goes from
	// 0 to 1. Zero disables fading.
	FadeLengthPx float64

	DynamicsMode DynamicsMode
	Dynamics     Dynamics
	// Rand feeds Dynamics. Nil uses a fixed-seed generator so replays are
	// deterministic.
	Rand func() float64

	Renderer Renderer
	Blend    BlendMode
	Sink     DiagnosticsSink
	Metrics  *metrics.PipelineMetrics
	Logger   *slog.Logger
}

// DefaultOptions returns options with the default stamper and no
// collaborators.
func DefaultOptions() Options {
	return Options{
		Stamper:          stamper.DefaultConfig(),
		SpacingPx:        4,
		SmoothingSamples: 3,
		PressureWindow:   3,
	}
}

// BatchResult is the outcome of one ProcessBatch call.
type BatchResult struct {
	Accepted      int
	Dabs          []stamper.Dab
	SecondaryDabs []stamper.Dab
	Diagnostics   ingress.Diagnostics
	Cursor        ingress.Cursor
}

// Session runs the stroke pipeline for one canvas.
type Session struct {
	opts   Options
	logger *slog.Logger
	rand   func() float64

	router   *ingress.Router
	cursor   ingress.Cursor
	state    *stroke.StateMachine
	smoother *smoothing.Smoother
	speed    *speed.Estimator
	stamp    *stamper.DualStamper
	pressure *input.PressureSmoother

	totals ingress.Diagnostics

	// Per-stroke state.
	open          bool
	strokeID      uint64
	lastPressure  float64
	initialDir    float64
	hasInitialDir bool
	travelled     float64
	lastDabX      float64
	lastDabY      float64
	hasLastDab    bool
}

// NewSession creates a session with a fresh cursor.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(0x5eed, 0xdab)).Float64
	}

	s := &Session{
		opts:     opts,
		logger:   logger,
		rand:     r,
		router:   ingress.NewRouter(logger),
		state:    stroke.NewStateMachine(),
		smoother: smoothing.New(),
		speed:    speed.NewEstimator(),
		stamp:    stamper.NewDual(opts.Stamper, opts.DualBrush),
	}
	if opts.PressureWindow > 1 {
		s.pressure = input.NewPressureSmoother(opts.PressureWindow)
	}
	return s
}

// Cursor returns the current ingress cursor.
func (s *Session) Cursor() ingress.Cursor {
	return s.cursor
}

// Totals returns the diagnostics accumulated over every batch.
func (s *Session) Totals() ingress.Diagnostics {
	return s.totals
}

// State returns the stroke state.
func (s *Session) State() stroke.State {
	return s.state.State()
}

// ProcessBatch routes samples, emits dabs for the accepted events and hands
// the result to the renderer and diagnostics sink. Malformed input never
// produces an error; it shows up in the diagnostics delta. Collaborator
// failures are logged.
func (s *Session) ProcessBatch(ctx context.Context, samples []input.Sample, bufferEpoch uint64, gate ingress.GateState) BatchResult {
	start := time.Now()

	routed := s.router.Route(samples, s.cursor, bufferEpoch, gate)
	s.cursor = routed.Cursor
	s.totals.Add(routed.Diagnostics)

	out := BatchResult{
		Accepted:    len(routed.Accepted),
		Diagnostics: routed.Diagnostics,
		Cursor:      routed.Cursor,
	}

	next := 0
	for _, raw := range samples {
		if next < len(routed.Accepted) && sameEvent(raw, routed.Accepted[next]) {
			s.handle(input.Sanitize(routed.Accepted[next]), &out)
			next++
			continue
		}
		if raw.Phase == input.PhaseHover {
			s.state.Advance(input.PhaseHover)
		}
	}

	// The router dropped the active stroke (gate, epoch change) without
	// an up reaching us.
	if s.open && !s.cursor.HasActiveStroke(s.strokeID) {
		s.abandon("router released stroke")
	}

	s.deliver(ctx, bufferEpoch, len(samples), &out)
	if m := s.opts.Metrics; m != nil {
		m.RecordBatch(len(samples), out.Accepted, out.Diagnostics, time.Since(start))
		m.RecordDabs(len(out.Dabs), len(out.SecondaryDabs))
		m.SourceLocks.Set(int64(s.router.Locks().Len()))
	}
	return out
}

// sameEvent matches a raw sample against an accepted event. Accepted
// sequence numbers are strictly increasing, so seq and phase identify it.
func sameEvent(a, b input.Sample) bool {
	return a.Seq == b.Seq && a.Phase == b.Phase && a.StrokeID == b.StrokeID
}

func (s *Session) handle(ev input.Sample, out *BatchResult) {
	if ev.Phase == input.PhaseDown && s.open {
		s.abandon("superseded by down")
	}
	s.state.Advance(ev.Phase)

	switch ev.Phase {
	case input.PhaseDown:
		s.begin(ev)
		p := s.point(ev, s.smoothPressure(ev.Pressure))
		s.smoother.Process(p)
		s.speed.NextSpeed(p.Pos.X, p.Pos.Y, p.TimestampMs, s.opts.SmoothingSamples)
		s.stampPoint(p, ev, 0, false, out)

	case input.PhaseMove:
		if !s.open {
			return
		}
		p := s.point(ev, s.smoothPressure(ev.Pressure))
		for _, seg := range s.smoother.Process(p) {
			s.stampSegment(seg, ev, false, out)
		}

	case input.PhaseUp:
		if !s.open {
			return
		}
		// Backends report zero pressure on release; keep the last
		// contact pressure for the closing segment.
		pressure := ev.Pressure
		if pressure == 0 {
			pressure = s.lastPressure
		}
		p := s.point(ev, pressure)
		segs := s.smoother.Process(p)
		if fin, ok := s.smoother.Finish(); ok {
			segs = append(segs, fin)
		}
		if len(segs) == 0 {
			s.stampPoint(p, ev, s.speed.Speed(), true, out)
		}
		for i, seg := range segs {
			s.stampSegment(seg, ev, i == len(segs)-1, out)
		}
		primary, secondary := s.stamp.Finalize()
		s.collect(primary, secondary, out)
		s.end()
	}
}

func (s *Session) begin(ev input.Sample) {
	s.open = true
	s.strokeID = ev.StrokeID
	s.smoother.Reset()
	s.speed.Reset()
	if s.pressure != nil {
		s.pressure.Reset()
	}
	s.stamp.BeginStroke()
	s.hasInitialDir = false
	s.initialDir = 0
	s.travelled = 0
	s.hasLastDab = false
	if m := s.opts.Metrics; m != nil {
		m.StrokeStarted()
	}
}

func (s *Session) end() {
	s.open = false
	if m := s.opts.Metrics; m != nil {
		m.StrokeEnded()
	}
}

// abandon drops the open stroke without a trailing dab.
func (s *Session) abandon(reason string) {
	s.logger.Debug("stroke abandoned", "stroke", s.strokeID, "reason", reason)
	s.stamp.BeginStroke()
	s.smoother.Reset()
	s.open = false
	if s.state.Drawing() {
		s.state.Reset()
	}
	if m := s.opts.Metrics; m != nil {
		m.ActiveStroke.Set(0)
	}
}

func (s *Session) smoothPressure(p float64) float64 {
	s.lastPressure = p
	if s.pressure == nil {
		return p
	}
	return s.pressure.Smooth(p)
}

func (s *Session) point(ev input.Sample, pressure float64) smoothing.Point {
	return smoothing.Point{Pos: ev.Position(), Pressure: pressure, TimestampMs: ev.TimestampMs()}
}

func (s *Session) stampSegment(seg smoothing.Segment, ev input.Sample, final bool, out *BatchResult) {
	to := seg.To
	v := s.speed.NextSpeed(to.Pos.X, to.Pos.Y, to.TimestampMs, s.opts.SmoothingSamples)
	if m := s.opts.Metrics; m != nil {
		m.StrokeSpeed.Observe(v)
	}
	s.stampPoint(to, ev, v, final, out)
}

func (s *Session) stampPoint(p smoothing.Point, ev input.Sample, v float64, final bool, out *BatchResult) {
	primary, secondary := s.stamp.Process(stamper.Input{
		X:           p.Pos.X,
		Y:           p.Pos.Y,
		Pressure:    p.Pressure,
		SpacingPx:   s.opts.SpacingPx,
		TimestampMs: p.TimestampMs,
		Speed:       v,
		TiltX:       ev.TiltX,
		TiltY:       ev.TiltY,
		Rotation:    ev.Rotation,
		BuildUp:     s.opts.BuildUp,
		Final:       final,
	})
	s.collect(primary, secondary, out)
}

func (s *Session) collect(primary, secondary []stamper.Dab, out *BatchResult) {
	for i := range primary {
		s.track(primary[i])
		s.applyDynamics(&primary[i])
	}
	for i := range secondary {
		s.applyDynamics(&secondary[i])
	}
	out.Dabs = append(out.Dabs, primary...)
	out.SecondaryDabs = append(out.SecondaryDabs, secondary...)
}

// track accumulates stroke length and the initial direction.
func (s *Session) track(d stamper.Dab) {
	if s.hasLastDab {
		s.travelled += math.Hypot(d.X-s.lastDabX, d.Y-s.lastDabY)
	}
	s.lastDabX, s.lastDabY, s.hasLastDab = d.X, d.Y, true
	if !s.hasInitialDir && d.Direction != 0 {
		s.initialDir = d.Direction
		s.hasInitialDir = true
	}
}

func (s *Session) applyDynamics(d *stamper.Dab) {
	if s.opts.Dynamics == nil || s.opts.DynamicsMode == DynamicsOff {
		return
	}
	fade := 0.0
	if s.opts.FadeLengthPx > 0 {
		fade = clamp01(s.travelled / s.opts.FadeLengthPx)
	}
	mods := s.opts.Dynamics.Apply(DynamicsInput{
		Pressure:         d.Pressure,
		TiltX:            d.TiltX,
		TiltY:            d.TiltY,
		Rotation:         d.Rotation,
		Direction:        d.Direction,
		InitialDirection: s.initialDir,
		FadeProgress:     fade,
	}, s.rand)

	if s.opts.DynamicsMode == DynamicsShadow {
		if m := s.opts.Metrics; m != nil {
			m.ShadowDynamics.Inc()
		}
		return
	}
	d.SizePx = mods.SizePx
	d.Flow = mods.Flow
	d.Opacity = mods.Opacity
}

func (s *Session) deliver(ctx context.Context, epoch uint64, samples int, out *BatchResult) {
	diag := out.Diagnostics
	if diag.SeqRewindRecoveryFails > 0 {
		s.logger.Warn("input buffer reset mid-stroke", "epoch", epoch, "diagnostics", diag)
	} else if !diag.IsZero() {
		s.logger.Debug("router dropped samples", "epoch", epoch, "diagnostics", diag)
	}

	if s.opts.Renderer != nil && (len(out.Dabs) > 0 || len(out.SecondaryDabs) > 0) {
		err := s.opts.Renderer.Render(ctx, RenderBatch{
			Primary:   out.Dabs,
			Secondary: out.SecondaryDabs,
			Blend:     s.opts.Blend,
		})
		if err != nil {
			s.logger.Error("render failed", "error", err, "dabs", len(out.Dabs))
		}
	}

	if s.opts.Sink != nil {
		err := s.opts.Sink.Record(ctx, BatchRecord{
			BufferEpoch:   epoch,
			Samples:       samples,
			Accepted:      out.Accepted,
			Dabs:          len(out.Dabs),
			SecondaryDabs: len(out.SecondaryDabs),
			Diagnostics:   diag,
		})
		if err != nil {
			s.logger.Warn("diagnostics sink failed", "error", err)
		}
	}
}
