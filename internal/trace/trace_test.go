package trace

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dabflow/internal/ingress"
	"dabflow/internal/input"
)

func TestLoadFixture(t *testing.T) {
	tr, err := Load(filepath.Join("testdata", "mixed.json"))
	require.NoError(t, err)

	assert.Equal(t, Version, tr.Version)
	require.NotNil(t, tr.Canvas)
	assert.Equal(t, 1050.0, tr.Canvas.WidthPx)
	require.Len(t, tr.Batches, 2)
	assert.Equal(t, 7, tr.SampleCount())
	assert.Equal(t, 1, tr.Strokes())

	first := tr.Batches[0].Samples
	assert.Equal(t, input.PhaseHover, first[0].Phase)
	assert.Equal(t, input.SourcePointerEvent, first[3].Source)
	assert.Equal(t, uint64(1008000), first[1].HostTimeUs)
	assert.Equal(t, "brush", tr.Batches[1].Gate.Tool)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{"version":`},
		{"wrong version", `{"version": 2, "batches": []}`},
		{"missing batches", `{"version": 1}`},
		{"unknown source", `{"version": 1, "batches": [{"samples": [
			{"seq": 1, "stroke_id": 1, "source": "serial", "phase": "down", "x_px": 0, "y_px": 0, "host_time_us": 0}]}]}`},
		{"unknown phase", `{"version": 1, "batches": [{"samples": [
			{"seq": 1, "stroke_id": 1, "source": "wintab", "phase": "press", "x_px": 0, "y_px": 0, "host_time_us": 0}]}]}`},
		{"negative seq", `{"version": 1, "batches": [{"samples": [
			{"seq": -1, "stroke_id": 1, "source": "wintab", "phase": "down", "x_px": 0, "y_px": 0, "host_time_us": 0}]}]}`},
		{"missing position", `{"version": 1, "batches": [{"samples": [
			{"seq": 1, "stroke_id": 1, "source": "wintab", "phase": "down", "host_time_us": 0}]}]}`},
		{"unknown field", `{"version": 1, "batches": [], "extra": true}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTrace)
		})
	}
}

func TestOutOfRangeValuesAreAccepted(t *testing.T) {
	// Pressure and tilt are clamped downstream, not rejected.
	tr, err := Decode([]byte(`{"version": 1, "batches": [{"samples": [
		{"seq": 1, "stroke_id": 1, "source": "macnative", "phase": "down", "x_px": -5, "y_px": 0,
		 "pressure_0_1": 4.2, "tilt_x_deg": 180, "host_time_us": 0}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, 4.2, tr.Batches[0].Samples[0].Pressure)
}

func TestWriteRoundTripAndDigest(t *testing.T) {
	tr := New("recorded")
	tr.Canvas = &Canvas{WidthPx: 800, HeightPx: 600}
	dt := uint64(900)
	samples := []input.Sample{
		{Seq: 1, StrokeID: 3, Source: input.SourceMacNative, Phase: input.PhaseDown, X: 1, Y: 2, Pressure: 0.5, HostTimeUs: 1000, DeviceTimeUs: &dt},
		{Seq: 2, StrokeID: 3, Source: input.SourceMacNative, Phase: input.PhaseUp, X: 4, Y: 2, HostTimeUs: 9000},
	}
	tr.Append(1, ingress.GateState{SpacePressed: true}, samples)
	samples[0].X = 99
	assert.Equal(t, 1.0, tr.Batches[0].Samples[0].X, "append copies samples")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tr))
	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, tr, back)

	d1, err := tr.Digest()
	require.NoError(t, err)
	d2, err := back.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	back.Batches[0].Samples[1].X = 5
	d3, err := back.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	tr := New("")
	tr.Append(0, ingress.GateState{}, []input.Sample{
		{Seq: 1, Source: input.SourceWinTab, Phase: input.PhaseHover, HostTimeUs: 1},
	})
	require.NoError(t, Save(path, tr))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tr, back)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTrace)
}

func TestValidateErrorNamesLocation(t *testing.T) {
	err := Validate([]byte(`{"version": 1, "batches": [{"samples": [{"seq": 1}]}]}`))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "samples"), err.Error())
}
