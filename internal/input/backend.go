package input

import "math"

// angleTenthsPerDegree is the unit of native orientation fields.
const angleTenthsPerDegree = 10.0

// ContactReport is one native tablet packet before phase resolution.
type ContactReport struct {
	RawX, RawY     int32
	RawPressure    float64
	InContact      bool
	InProximity    bool
	AzimuthTenths  int32
	AltitudeTenths int32
	TwistTenths    int32
	HostTimeUs     uint64
	DeviceTimeMs   *uint32
}

// Backend converts native reports from one pointer into sequenced samples.
// It owns the input buffer epoch: ResetBuffer bumps the epoch and restarts
// sequence numbering, which the ingress router detects as a rewind.
type Backend struct {
	source      Source
	pointerID   uint32
	deviceID    string
	pressureMax float64
	mapper      CoordinateMapper
	phases      *PhaseMachine
	clock       *Timebase

	seq   uint64
	epoch uint64
}

// NewBackend creates a backend adapter for one pointer.
func NewBackend(source Source, pointerID uint32, deviceID string, pressureMax float64, mapper CoordinateMapper) *Backend {
	return &Backend{
		source:      source,
		pointerID:   pointerID,
		deviceID:    deviceID,
		pressureMax: math.Max(pressureMax, 1),
		mapper:      mapper,
		phases:      NewPhaseMachine(),
		clock:       NewTimebase(),
	}
}

// OrientationToTilt converts azimuth/altitude (tenths of a degree) into
// per-axis tilt angles in degrees.
func OrientationToTilt(azimuthTenths, altitudeTenths int32) (tiltX, tiltY float64) {
	az := float64(azimuthTenths) / angleTenthsPerDegree * math.Pi / 180
	alt := float64(altitudeTenths) / angleTenthsPerDegree * math.Pi / 180

	axisXY := math.Cos(alt)
	axisZ := math.Sin(alt)
	axisX := math.Cos(az) * axisXY
	axisY := math.Sin(az) * axisXY

	tiltX = math.Atan2(axisX, axisZ) * 180 / math.Pi
	tiltY = math.Atan2(axisY, axisZ) * 180 / math.Pi
	return ClampTilt(tiltX), ClampTilt(tiltY)
}

// Convert turns a report into a sample. It returns false when the report
// carries no phase.
func (b *Backend) Convert(r ContactReport) (Sample, bool) {
	pressure := ClampPressure(r.RawPressure / b.pressureMax)
	inContact := r.InContact || pressure > 0

	phase, ok := b.phases.Resolve(b.pointerID, inContact, r.InProximity)
	if !ok {
		return Sample{}, false
	}
	if phase.Phase == PhaseUp {
		pressure = 0
	}

	x, y := b.mapper.Map(r.RawX, r.RawY)
	tiltX, tiltY := OrientationToTilt(r.AzimuthTenths, r.AltitudeTenths)

	b.seq++
	s := Sample{
		Seq:        b.seq,
		StrokeID:   phase.StrokeID,
		PointerID:  b.pointerID,
		DeviceID:   b.deviceID,
		Source:     b.source,
		Phase:      phase.Phase,
		X:          x,
		Y:          y,
		Pressure:   pressure,
		TiltX:      tiltX,
		TiltY:      tiltY,
		Rotation:   NormalizeRotation(float64(r.TwistTenths) / angleTenthsPerDegree),
		HostTimeUs: b.clock.Normalize(b.pointerID, max(r.HostTimeUs, 1)),
	}
	if r.DeviceTimeMs != nil {
		us := uint64(*r.DeviceTimeMs) * 1000
		s.DeviceTimeUs = &us
	}
	return s, true
}

// ResetBuffer simulates the native ring buffer being reallocated: the epoch
// advances, sequence numbers restart and phase/clock state is dropped.
func (b *Backend) ResetBuffer() {
	b.epoch++
	b.seq = 0
	b.phases.Reset()
	b.clock.Reset()
}

// Epoch returns the current buffer epoch.
func (b *Backend) Epoch() uint64 {
	return b.epoch
}

// CorrectedTimestamps returns how many host timestamps were rewritten.
func (b *Backend) CorrectedTimestamps() uint64 {
	return b.clock.Corrected()
}
