package ingress

import (
	"log/slog"

	"dabflow/internal/input"
)

// Result is the outcome of routing one batch.
type Result struct {
	Accepted    []input.Sample
	Cursor      Cursor
	Diagnostics Diagnostics
}

// Router validates raw sample batches for one canvas. Apart from its source
// lock table it holds no state; the cursor is threaded through each call.
//
// Callers must serialize calls on a Router.
type Router struct {
	locks  *SourceLocks
	logger *slog.Logger
}

// NewRouter creates a router with an empty lock table. A nil logger
// discards output.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{locks: NewSourceLocks(), logger: logger}
}

// Locks exposes the router's source lock table.
func (r *Router) Locks() *SourceLocks {
	return r.locks
}

// Route filters samples in array order and returns the accepted stroke
// events, the next cursor and the diagnostics delta for this call.
//
// While the gate is blocked every non-hover sample is dropped. Any gated
// sample of the active stroke, not only its up, ends that stroke: moves for
// it after the gate lifts count as down-without-seed until a new down.
func (r *Router) Route(samples []input.Sample, cursor Cursor, bufferEpoch uint64, gate GateState) Result {
	next := cursor
	var diag Diagnostics

	if bufferEpoch != cursor.BufferEpoch {
		r.locks.Clear()
		next = Cursor{BufferEpoch: bufferEpoch}
		if first, ok := firstStrokeEvent(samples); ok && first.Phase != input.PhaseDown {
			diag.SeqRewindRecoveryFails++
			r.logger.Debug("epoch changed mid-stroke",
				"from", cursor.BufferEpoch, "to", bufferEpoch,
				"first_phase", first.Phase.String(), "stroke", first.StrokeID)
		}
	}

	blocked := gate.Blocked()
	accepted := make([]input.Sample, 0, len(samples))

	for _, s := range samples {
		if s.Phase == input.PhaseHover {
			if s.Seq > next.Seq {
				next.Seq = s.Seq
			}
			continue
		}
		if s.Seq <= next.Seq {
			diag.StaleSeqDrops++
			continue
		}
		next.Seq = s.Seq

		if !s.IsContact() {
			continue
		}

		if blocked {
			diag.GestureBlockDrops++
			// A gated sample ends the active stroke; whatever arrives for
			// it after the gate lifts must start over with a down.
			if next.HasActiveStroke(s.StrokeID) {
				r.locks.Release(s.StrokeID)
				next.clearActive()
			}
			if s.Phase == input.PhaseUp {
				r.locks.Release(s.StrokeID)
			}
			continue
		}

		if !r.locks.Resolve(s.StrokeID, s.Source) {
			diag.MixedSourceRejects++
			continue
		}

		switch s.Phase {
		case input.PhaseDown:
			if next.Active && next.ActiveStrokeID != s.StrokeID {
				diag.TailDrops++
				r.locks.Release(next.ActiveStrokeID)
			}
			next.setActive(s.StrokeID, s.Source)
			accepted = append(accepted, s)

		case input.PhaseMove, input.PhaseUp:
			switch {
			case !next.Active:
				diag.DownWithoutSeed++
				if s.Phase == input.PhaseUp {
					r.locks.Release(s.StrokeID)
				}
			case next.ActiveStrokeID != s.StrokeID:
				diag.TailDrops++
				if s.Phase == input.PhaseUp {
					r.locks.Release(s.StrokeID)
				}
			default:
				accepted = append(accepted, s)
				if s.Phase == input.PhaseUp {
					r.locks.Release(s.StrokeID)
					next.clearActive()
				}
			}
		}
	}

	return Result{Accepted: accepted, Cursor: next, Diagnostics: diag}
}

func firstStrokeEvent(samples []input.Sample) (input.Sample, bool) {
	for _, s := range samples {
		if s.Phase != input.PhaseHover {
			return s, true
		}
	}
	return input.Sample{}, false
}
