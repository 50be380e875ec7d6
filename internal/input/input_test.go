package input

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		input    string
		expected Source
		hasError bool
	}{
		{"wintab", SourceWinTab, false},
		{"MacNative", SourceMacNative, false},
		{" pointerevent ", SourcePointerEvent, false},
		{"mouse", SourceUnknown, true},
		{"", SourceUnknown, true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseSource(tc.input)
			if tc.hasError {
				assert.ErrorIs(t, err, ErrUnknownSource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParsePhase(t *testing.T) {
	for _, p := range []Phase{PhaseHover, PhaseDown, PhaseMove, PhaseUp} {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePhase("press")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestSampleJSONWireNames(t *testing.T) {
	raw := `{"seq":7,"stroke_id":42,"pointer_id":1,"device_id":"pen-0",
		"source":"wintab","phase":"down","x_px":10.5,"y_px":20,
		"pressure_0_1":0.5,"tilt_x_deg":10,"tilt_y_deg":-5,"rotation_deg":90,
		"host_time_us":1000,"device_time_us":900}`

	var s Sample
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, uint64(7), s.Seq)
	assert.Equal(t, uint64(42), s.StrokeID)
	assert.Equal(t, SourceWinTab, s.Source)
	assert.Equal(t, PhaseDown, s.Phase)
	assert.InDelta(t, 10.5, s.X, 1e-9)
	assert.InDelta(t, 1.0, s.TimestampMs(), 1e-9)
	require.NotNil(t, s.DeviceTimeUs)
	assert.Equal(t, uint64(900), *s.DeviceTimeUs)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"source":"wintab"`)
	assert.Contains(t, string(out), `"phase":"down"`)
}

func TestSampleJSONRejectsUnknownSource(t *testing.T) {
	var s Sample
	err := json.Unmarshal([]byte(`{"source":"mouse","phase":"down"}`), &s)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestSanitize(t *testing.T) {
	s := Sanitize(Sample{
		X:        math.NaN(),
		Y:        math.Inf(1),
		Pressure: 1.7,
		TiltX:    -120,
		TiltY:    math.NaN(),
		Rotation: -90,
	})
	assert.Equal(t, 0.0, s.X)
	assert.Equal(t, 0.0, s.Y)
	assert.Equal(t, 1.0, s.Pressure)
	assert.Equal(t, -90.0, s.TiltX)
	assert.Equal(t, 0.0, s.TiltY)
	assert.InDelta(t, 270.0, s.Rotation, 1e-9)

	assert.Equal(t, 0.0, ClampPressure(-0.2))
	assert.Equal(t, 0.0, ClampPressure(math.NaN()))
	assert.InDelta(t, 0.0, NormalizeRotation(720), 1e-9)
}

func TestPhaseMachineHoverDownMoveUp(t *testing.T) {
	m := NewPhaseMachine()

	hover, ok := m.Resolve(1, false, true)
	require.True(t, ok)
	assert.Equal(t, PhaseHover, hover.Phase)

	down, ok := m.Resolve(1, true, true)
	require.True(t, ok)
	assert.Equal(t, PhaseDown, down.Phase)
	assert.Equal(t, hover.StrokeID, down.StrokeID)

	mv, ok := m.Resolve(1, true, true)
	require.True(t, ok)
	assert.Equal(t, PhaseMove, mv.Phase)
	assert.Equal(t, down.StrokeID, mv.StrokeID)

	up, ok := m.Resolve(1, false, true)
	require.True(t, ok)
	assert.Equal(t, PhaseUp, up.Phase)
	assert.Equal(t, down.StrokeID, up.StrokeID)

	next, ok := m.Resolve(1, true, true)
	require.True(t, ok)
	assert.Equal(t, PhaseDown, next.Phase)
	assert.NotEqual(t, down.StrokeID, next.StrokeID)
}

func TestPhaseMachineIndependentPointers(t *testing.T) {
	m := NewPhaseMachine()

	p1, _ := m.Resolve(1, true, true)
	p2, _ := m.Resolve(2, true, true)
	p1Move, _ := m.Resolve(1, true, true)
	p2Up, _ := m.Resolve(2, false, true)

	assert.NotEqual(t, p1.StrokeID, p2.StrokeID)
	assert.Equal(t, p1.StrokeID, p1Move.StrokeID)
	assert.Equal(t, PhaseUp, p2Up.Phase)
	assert.Equal(t, p2.StrokeID, p2Up.StrokeID)
}

func TestPhaseMachineLeavingProximity(t *testing.T) {
	m := NewPhaseMachine()

	_, ok := m.Resolve(9, false, false)
	assert.False(t, ok, "unknown pointer out of range has no phase")

	m.Resolve(9, false, true)
	_, ok = m.Resolve(9, false, false)
	assert.False(t, ok, "hover leaving proximity has no phase")

	down, _ := m.Resolve(9, true, true)
	up, ok := m.Resolve(9, false, false)
	require.True(t, ok)
	assert.Equal(t, PhaseUp, up.Phase)
	assert.Equal(t, down.StrokeID, up.StrokeID)
}

func TestTimebaseMonotonicPerPointer(t *testing.T) {
	tb := NewTimebase()
	assert.Equal(t, uint64(100), tb.Normalize(1, 100))
	assert.Equal(t, uint64(101), tb.Normalize(1, 100))
	assert.Equal(t, uint64(102), tb.Normalize(1, 99))
	assert.Equal(t, uint64(2), tb.Corrected())

	assert.Equal(t, uint64(120), tb.Normalize(2, 120))
	assert.Equal(t, uint64(103), tb.Normalize(1, 50))

	tb.Reset()
	assert.Equal(t, uint64(0), tb.Corrected())
	assert.Equal(t, uint64(50), tb.Normalize(1, 50))
}

func TestCoordinateMapper(t *testing.T) {
	m := NewCoordinateMapper(1920, 1080)
	x, y := m.Map(-10, -20)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
	x, y = m.Map(3000, 2000)
	assert.Equal(t, 1920.0, x)
	assert.Equal(t, 1080.0, y)

	axis := NewAxisMapper(2100, 1350, 0, 44799, 0, 29599, false)
	xm, ym := axis.Map(22399, 14799)
	assert.InDelta(t, 1050, xm, 1)
	assert.InDelta(t, 675, ym, 1)

	inv := NewAxisMapper(100, 80, 0, 1000, 0, 1000, true)
	_, top := inv.Map(500, 0)
	_, bottom := inv.Map(500, 1000)
	assert.Equal(t, 80.0, top)
	assert.Equal(t, 0.0, bottom)
}

func TestPressureCurves(t *testing.T) {
	assert.Equal(t, 0.5, CurveLinear.Apply(0.5))
	assert.Greater(t, CurveSoft.Apply(0.25), 0.25)
	assert.Less(t, CurveHard.Apply(0.5), 0.5)
	assert.InDelta(t, 0.5, CurveSCurve.Apply(0.5), 1e-9)
	assert.Equal(t, 1.0, CurveHard.Apply(3))

	c, err := ParsePressureCurve("S-Curve")
	require.NoError(t, err)
	assert.Equal(t, CurveSCurve, c)
	_, err = ParsePressureCurve("exp")
	assert.Error(t, err)
}

func TestPressureLUT(t *testing.T) {
	lut := NewPressureLUT(CurveHard, DefaultLUTSize)
	for _, p := range []float64{0, 0.1, 0.33, 0.5, 0.9, 1} {
		assert.InDelta(t, CurveHard.Apply(p), lut.Lookup(p), 1e-4)
	}

	var identity *PressureLUT
	assert.Equal(t, 0.7, identity.Lookup(0.7))
	assert.Equal(t, 1.0, identity.Lookup(2))
}

func TestPressureSmoother(t *testing.T) {
	s := NewPressureSmoother(3)
	assert.Equal(t, 0.3, s.Smooth(0.3))
	assert.InDelta(t, 0.4, s.Smooth(0.6), 1e-9)
	assert.InDelta(t, 0.6, s.Smooth(0.9), 1e-9)
	assert.InDelta(t, 0.9, s.Smooth(1.2), 1e-9)

	s.Reset()
	assert.Equal(t, 0.8, s.Smooth(0.8))
}

func TestBackendConvert(t *testing.T) {
	b := NewBackend(SourceWinTab, 3, "intuos", 1023, NewCoordinateMapper(800, 600))

	_, ok := b.Convert(ContactReport{RawX: 10, RawY: 10})
	assert.False(t, ok, "nothing in range yet")

	hover, ok := b.Convert(ContactReport{RawX: 10, RawY: 10, InProximity: true, HostTimeUs: 100})
	require.True(t, ok)
	assert.Equal(t, PhaseHover, hover.Phase)
	assert.Equal(t, uint64(1), hover.Seq)

	down, ok := b.Convert(ContactReport{RawX: 20, RawY: 30, RawPressure: 512, InProximity: true, HostTimeUs: 100, AltitudeTenths: 900})
	require.True(t, ok)
	assert.Equal(t, PhaseDown, down.Phase)
	assert.Equal(t, uint64(2), down.Seq)
	assert.Equal(t, SourceWinTab, down.Source)
	assert.InDelta(t, 512.0/1023.0, down.Pressure, 1e-9)
	assert.Equal(t, uint64(101), down.HostTimeUs, "duplicate host time is corrected")
	assert.InDelta(t, 0, down.TiltX, 1e-6)

	up, ok := b.Convert(ContactReport{RawX: 25, RawY: 30, InProximity: true, HostTimeUs: 300})
	require.True(t, ok)
	assert.Equal(t, PhaseUp, up.Phase)
	assert.Equal(t, down.StrokeID, up.StrokeID)
	assert.Equal(t, 0.0, up.Pressure)
	assert.Equal(t, uint64(1), b.CorrectedTimestamps())

	b.ResetBuffer()
	assert.Equal(t, uint64(1), b.Epoch())
	again, ok := b.Convert(ContactReport{InProximity: true, HostTimeUs: 400})
	require.True(t, ok)
	assert.Equal(t, uint64(1), again.Seq)
}

func TestOrientationToTilt(t *testing.T) {
	x, y := OrientationToTilt(0, 450)
	assert.InDelta(t, 45, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, y = OrientationToTilt(900, 450)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 45, y, 1e-6)
}
