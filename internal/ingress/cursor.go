// Package ingress implements the session router: the boundary that accepts
// raw pointer samples, binds each stroke to one input source, enforces
// monotonic sequence numbers across buffer epochs and blocks painting while a
// UI gesture owns the pointer.
package ingress

import (
	"log/slog"

	"dabflow/internal/input"
)

// ToolMove is the tool name that gates stroke input.
const ToolMove = "move"

// Cursor is the per-canvas routing position. Route never mutates a cursor;
// it returns the next one.
type Cursor struct {
	Seq            uint64       `json:"seq"`
	BufferEpoch    uint64       `json:"buffer_epoch"`
	ActiveStrokeID uint64       `json:"active_stroke_id,omitempty"`
	ActiveSource   input.Source `json:"-"`
	Active         bool         `json:"active"`
}

// HasActiveStroke reports whether id is the stroke currently being drawn.
func (c Cursor) HasActiveStroke(id uint64) bool {
	return c.Active && c.ActiveStrokeID == id
}

func (c *Cursor) setActive(id uint64, src input.Source) {
	c.Active = true
	c.ActiveStrokeID = id
	c.ActiveSource = src
}

func (c *Cursor) clearActive() {
	c.Active = false
	c.ActiveStrokeID = 0
	c.ActiveSource = input.SourceUnknown
}

// GateState is the UI state that decides whether stroke input may paint.
type GateState struct {
	SpacePressed      bool   `json:"space_pressed,omitempty"`
	Panning           bool   `json:"panning,omitempty"`
	Zooming           bool   `json:"zooming,omitempty"`
	Tool              string `json:"tool,omitempty"`
	CanvasInputLocked bool   `json:"canvas_input_locked,omitempty"`
}

// Blocked reports whether a camera gesture or lock currently owns the pointer.
func (g GateState) Blocked() bool {
	return g.SpacePressed || g.Panning || g.Zooming || g.Tool == ToolMove || g.CanvasInputLocked
}

// Diagnostics counts protocol violations observed during one Route call.
// Callers accumulate deltas; the router never keeps totals.
type Diagnostics struct {
	MixedSourceRejects     uint64 `json:"mixed_source_reject_count"`
	DownWithoutSeed        uint64 `json:"native_down_without_seed_count"`
	TailDrops              uint64 `json:"stroke_tail_drop_count"`
	SeqRewindRecoveryFails uint64 `json:"seq_rewind_recovery_fail_count"`
	GestureBlockDrops      uint64 `json:"gesture_block_drop_count"`
	StaleSeqDrops          uint64 `json:"stale_seq_drop_count"`
}

// Add accumulates o into d.
func (d *Diagnostics) Add(o Diagnostics) {
	d.MixedSourceRejects += o.MixedSourceRejects
	d.DownWithoutSeed += o.DownWithoutSeed
	d.TailDrops += o.TailDrops
	d.SeqRewindRecoveryFails += o.SeqRewindRecoveryFails
	d.GestureBlockDrops += o.GestureBlockDrops
	d.StaleSeqDrops += o.StaleSeqDrops
}

// IsZero reports whether no counter was incremented.
func (d Diagnostics) IsZero() bool {
	return d == Diagnostics{}
}

// LogValue implements slog.LogValuer.
func (d Diagnostics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("mixed_source", d.MixedSourceRejects),
		slog.Uint64("down_without_seed", d.DownWithoutSeed),
		slog.Uint64("tail_drop", d.TailDrops),
		slog.Uint64("rewind_fail", d.SeqRewindRecoveryFails),
		slog.Uint64("gesture_block", d.GestureBlockDrops),
		slog.Uint64("stale_seq", d.StaleSeqDrops),
	)
}
