// Package sampler converts a segment of pointer movement into the
// fractional positions at which dabs are emitted.
//
// Two channels run side by side: a distance channel spaced by SpacingPx and
// a time channel spaced by MaxIntervalMs. Each channel carries leftover
// progress across segments so emission cadence does not depend on how the
// path was split into segments.
package sampler

import (
	"math"
	"slices"
)

const (
	// carryEpsilon collapses carries that land on a step boundary.
	carryEpsilon = 1e-6
	// mergeEpsilon merges samples from both channels that coincide.
	mergeEpsilon = 1e-4
	// maxSamplesPerSegment bounds the emissions of one channel for one
	// segment. Longer runs are spread evenly and end on the segment end.
	maxSamplesPerSegment = 4096
)

// Segment describes one span of movement.
type Segment struct {
	DistancePx    float64
	DurationMs    float64
	SpacingPx     float64
	MaxIntervalMs float64
}

// Sampler holds the carry for both channels. The zero value is ready to use.
type Sampler struct {
	distanceCarry float64
	timeCarry     float64
}

// New returns a sampler with zero carry.
func New() *Sampler {
	return &Sampler{}
}

// Sample returns the sorted positions t in (0,1] along seg at which a dab is
// due. A channel with a non-positive step or amount emits nothing and keeps
// its carry. A channel due more than maxSamplesPerSegment emissions emits
// exactly that many, evenly spaced, and restarts with zero carry.
func (s *Sampler) Sample(seg Segment) []float64 {
	var out []float64
	out, s.distanceCarry = sampleChannel(out, seg.DistancePx, seg.SpacingPx, s.distanceCarry)
	out, s.timeCarry = sampleChannel(out, seg.DurationMs, seg.MaxIntervalMs, s.timeCarry)
	if len(out) < 2 {
		return out
	}
	slices.Sort(out)
	merged := out[:1]
	for _, t := range out[1:] {
		if t-merged[len(merged)-1] > mergeEpsilon {
			merged = append(merged, t)
		}
	}
	return merged
}

func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func sampleChannel(out []float64, amount, step, carry float64) ([]float64, float64) {
	if !usable(amount) || !usable(step) {
		return out, carry
	}
	if carry < 0 || math.IsNaN(carry) {
		carry = 0
	}

	if (carry+amount)/step > maxSamplesPerSegment {
		for i := 1; i <= maxSamplesPerSegment; i++ {
			out = append(out, float64(i)/maxSamplesPerSegment)
		}
		return out, 0
	}

	stepT := step / amount
	for t := (step - carry) / amount; t <= 1+carryEpsilon; t += stepT {
		if t <= 0 {
			continue
		}
		out = append(out, math.Min(t, 1))
	}

	next := math.Mod(carry+amount, step)
	if next < carryEpsilon || step-next < carryEpsilon {
		next = 0
	}
	return out, next
}

// DistanceCarry returns the distance progress toward the next emission.
func (s *Sampler) DistanceCarry() float64 {
	return s.distanceCarry
}

// TimeCarry returns the time progress toward the next emission.
func (s *Sampler) TimeCarry() float64 {
	return s.timeCarry
}

// ResetDistance clears the distance carry.
func (s *Sampler) ResetDistance() {
	s.distanceCarry = 0
}

// ResetTime clears the time carry.
func (s *Sampler) ResetTime() {
	s.timeCarry = 0
}

// Reset clears both carries.
func (s *Sampler) Reset() {
	s.distanceCarry = 0
	s.timeCarry = 0
}
