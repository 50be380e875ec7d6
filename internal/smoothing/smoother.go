// Package smoothing removes hardware jitter from freehand strokes by
// drawing through the midpoints of consecutive samples.
package smoothing

import "seehuhn.de/go/geom/vec"

// Point is one real or interpolated stroke point.
type Point struct {
	Pos         vec.Vec2
	Pressure    float64
	TimestampMs float64
}

// Midpoint returns the point halfway between p and q, averaging pressure
// and time.
func Midpoint(p, q Point) Point {
	return Point{
		Pos:         vec.Vec2{X: (p.Pos.X + q.Pos.X) / 2, Y: (p.Pos.Y + q.Pos.Y) / 2},
		Pressure:    (p.Pressure + q.Pressure) / 2,
		TimestampMs: (p.TimestampMs + q.TimestampMs) / 2,
	}
}

// Segment is a piece of the smoothed path.
type Segment struct {
	From, To Point
}

// Length returns the distance covered by the segment.
func (s Segment) Length() float64 {
	return s.To.Pos.Sub(s.From.Pos).Length()
}

// Smoother emits segments that trail the real samples by half a segment, so
// the path never runs ahead of the pointer.
type Smoother struct {
	prev, cur Point
	lastOut   Point
	n         int
	finished  bool
}

// New returns an empty smoother.
func New() *Smoother {
	return &Smoother{}
}

// Process feeds a real point and returns zero or one segment.
func (s *Smoother) Process(p Point) []Segment {
	s.n++
	s.finished = false
	switch s.n {
	case 1:
		s.cur = p
		s.lastOut = p
		return nil
	case 2:
		s.prev, s.cur = s.cur, p
		s.lastOut = p
		if s.prev.Pos == p.Pos {
			return nil
		}
		return []Segment{{From: s.prev, To: p}}
	}

	s.prev, s.cur = s.cur, p
	anchor := Midpoint(s.prev, s.cur)
	if anchor.Pos == s.lastOut.Pos {
		return nil
	}
	seg := Segment{From: s.lastOut, To: anchor}
	s.lastOut = anchor
	return []Segment{seg}
}

// Finish returns the closing segment from the last anchor to the last real
// point. It returns false when there is nothing left to draw or when called
// twice.
func (s *Smoother) Finish() (Segment, bool) {
	if s.n == 0 || s.finished {
		return Segment{}, false
	}
	s.finished = true
	if s.lastOut.Pos == s.cur.Pos {
		return Segment{}, false
	}
	seg := Segment{From: s.lastOut, To: s.cur}
	s.lastOut = s.cur
	return seg, true
}

// Last returns the most recent real point.
func (s *Smoother) Last() (Point, bool) {
	return s.cur, s.n > 0
}

// Reset prepares the smoother for a new stroke.
func (s *Smoother) Reset() {
	*s = Smoother{}
}
