package input

import "math"

// CoordinateMapper maps raw tablet axis values into window pixels.
type CoordinateMapper struct {
	width, height float64
	xMin, xMax    float64
	yMin, yMax    float64
	invertY       bool
}

// NewCoordinateMapper maps raw values that are already in pixel units.
func NewCoordinateMapper(width, height float64) CoordinateMapper {
	w, h := math.Max(width, 1), math.Max(height, 1)
	return CoordinateMapper{width: w, height: h, xMax: w, yMax: h}
}

// NewAxisMapper maps a tablet's native axis range onto a width×height window.
func NewAxisMapper(width, height float64, xMin, xMax, yMin, yMax int32, invertY bool) CoordinateMapper {
	return CoordinateMapper{
		width:   math.Max(width, 1),
		height:  math.Max(height, 1),
		xMin:    float64(xMin),
		xMax:    float64(xMax),
		yMin:    float64(yMin),
		yMax:    float64(yMax),
		invertY: invertY,
	}
}

func normalizeAxis(v, lo, hi float64) float64 {
	span := hi - lo
	if math.IsNaN(span) || math.IsInf(span, 0) || math.Abs(span) < 1e-9 {
		return 0
	}
	return math.Max(0, math.Min(1, (v-lo)/span))
}

// Map converts a raw position into window pixels, clamped to the window.
func (m CoordinateMapper) Map(rawX, rawY int32) (x, y float64) {
	nx := normalizeAxis(float64(rawX), m.xMin, m.xMax)
	ny := normalizeAxis(float64(rawY), m.yMin, m.yMax)
	if m.invertY {
		ny = 1 - ny
	}
	return nx * m.width, ny * m.height
}

// Size returns the window dimensions.
func (m CoordinateMapper) Size() (width, height float64) {
	return m.width, m.height
}
