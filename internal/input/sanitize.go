package input

import "math"

// ClampPressure maps pressure into [0,1]. Non-finite values become 0.
func ClampPressure(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ClampTilt maps a tilt angle into [-90,90] degrees. Non-finite values become 0.
func ClampTilt(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(-90, math.Min(90, v))
}

// NormalizeRotation wraps a rotation into [0,360) degrees.
func NormalizeRotation(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Mod(v, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

// finiteOr returns v, or fallback when v is NaN or infinite.
func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Sanitize returns a copy of s with every numeric field forced into its
// valid domain. Non-finite coordinates collapse to 0.
func Sanitize(s Sample) Sample {
	s.X = finiteOr(s.X, 0)
	s.Y = finiteOr(s.Y, 0)
	s.Pressure = ClampPressure(s.Pressure)
	s.TiltX = ClampTilt(s.TiltX)
	s.TiltY = ClampTilt(s.TiltY)
	s.Rotation = NormalizeRotation(s.Rotation)
	return s
}
