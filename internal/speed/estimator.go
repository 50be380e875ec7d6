// Package speed estimates pointer speed from timestamped positions.
//
// Raw timestamps from tablet drivers are noisy, so frame intervals go
// through a trimmed-mean filter and distances are accumulated over a sliding
// window until a noise floor is exceeded.
package speed

import (
	"math"
	"slices"
)

const (
	dtWindowSize       = 200
	distanceWindowSize = 512

	// maxFilteredDtMs bounds the intervals admitted into the timing filter.
	maxFilteredDtMs = 120.0
	defaultDtMs     = 8.0

	trimFraction  = 0.2
	minDistancePx = 5.0
)

// ring is a fixed-capacity FIFO of float64 values.
type ring struct {
	buf   []float64
	start int
	n     int
}

func newRing(capacity int) ring {
	return ring{buf: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th value, oldest first.
func (r *ring) at(i int) float64 {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring) len() int { return r.n }

func (r *ring) reset() {
	r.start = 0
	r.n = 0
}

// Estimator produces a smoothed speed in pixels per millisecond. One
// estimator follows one stroke; Reset it between strokes.
type Estimator struct {
	dts       ring
	distances ring
	scratch   []float64

	hasLast      bool
	lastX, lastY float64
	lastT        float64
	speed        float64
}

// NewEstimator creates an estimator with empty windows.
func NewEstimator() *Estimator {
	return &Estimator{
		dts:       newRing(dtWindowSize),
		distances: newRing(distanceWindowSize),
		scratch:   make([]float64, 0, dtWindowSize),
	}
}

// NextSpeed feeds a position and returns the current speed in px/ms. The
// first call after Reset returns 0. Intervals outside (0, 120ms] are kept
// out of the timing filter but their distance is still recorded.
func (e *Estimator) NextSpeed(x, y, timestampMs float64, smoothingSamples int) float64 {
	if !e.hasLast {
		e.hasLast = true
		e.lastX, e.lastY, e.lastT = x, y, timestampMs
		e.speed = 0
		return 0
	}

	dist := math.Hypot(x-e.lastX, y-e.lastY)
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		dist = 0
	}
	dt := timestampMs - e.lastT
	e.lastX, e.lastY, e.lastT = x, y, timestampMs

	if dt > 0 && dt <= maxFilteredDtMs {
		e.dts.push(dt)
	}
	avgDt := e.filteredDt()

	e.distances.push(dist)

	var totalDist, totalTime float64
	count := 0
	for i := e.distances.len() - 1; i >= 0; i-- {
		totalDist += e.distances.at(i)
		totalTime += avgDt
		count++
		if count > smoothingSamples && totalDist > minDistancePx {
			break
		}
	}

	if totalDist > 0 && totalTime > 0 {
		e.speed = totalDist / totalTime
	}
	return e.speed
}

// filteredDt returns the trimmed mean of the interval window. The trim is
// symmetric; an odd remainder trims one more from the high end.
func (e *Estimator) filteredDt() float64 {
	n := e.dts.len()
	if n == 0 {
		return defaultDtMs
	}
	e.scratch = e.scratch[:0]
	for i := range n {
		e.scratch = append(e.scratch, e.dts.at(i))
	}
	slices.Sort(e.scratch)

	trim := int(float64(n) * trimFraction)
	lo := trim / 2
	hi := trim - lo
	kept := e.scratch[lo : n-hi]
	if len(kept) == 0 {
		kept = e.scratch
	}

	var sum float64
	for _, v := range kept {
		sum += v
	}
	return sum / float64(len(kept))
}

// Speed returns the last computed speed in px/ms.
func (e *Estimator) Speed() float64 {
	return e.speed
}

// NormalizedSpeed maps the last speed into [0,1] relative to maxSpeed.
func (e *Estimator) NormalizedSpeed(maxSpeed float64) float64 {
	if !(maxSpeed > 0) {
		return 0
	}
	return math.Max(0, math.Min(1, e.speed/maxSpeed))
}

// Reset forgets the previous point and both windows.
func (e *Estimator) Reset() {
	e.dts.reset()
	e.distances.reset()
	e.hasLast = false
	e.speed = 0
}
