package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarryAccumulatesAcrossSegments(t *testing.T) {
	s := New()
	got := s.Sample(Segment{DistancePx: 1.5, DurationMs: 2, SpacingPx: 4, MaxIntervalMs: 16})
	assert.Empty(t, got)
	assert.InDelta(t, 1.5, s.DistanceCarry(), 1e-9)
	assert.InDelta(t, 2, s.TimeCarry(), 1e-9)

	got = s.Sample(Segment{DistancePx: 3, DurationMs: 2, SpacingPx: 4, MaxIntervalMs: 16})
	require.Len(t, got, 1)
	assert.InDelta(t, 2.5/3, got[0], 1e-9)
	assert.InDelta(t, 0.5, s.DistanceCarry(), 1e-9)
}

func TestDistanceChannel(t *testing.T) {
	tests := []struct {
		name      string
		seg       Segment
		want      []float64
		wantCarry float64
	}{
		{
			name:      "exact multiple",
			seg:       Segment{DistancePx: 30, SpacingPx: 10},
			want:      []float64{1.0 / 3, 2.0 / 3, 1},
			wantCarry: 0,
		},
		{
			name:      "remainder carried",
			seg:       Segment{DistancePx: 25, SpacingPx: 10},
			want:      []float64{0.4, 0.8},
			wantCarry: 5,
		},
		{
			name:      "below spacing",
			seg:       Segment{DistancePx: 3, SpacingPx: 10},
			want:      nil,
			wantCarry: 3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			got := s.Sample(tc.seg)
			require.Len(t, got, len(tc.want))
			for i := range tc.want {
				assert.InDelta(t, tc.want[i], got[i], 1e-9)
			}
			assert.InDelta(t, tc.wantCarry, s.DistanceCarry(), 1e-9)
		})
	}
}

func TestTimeChannelEmitsWhileStationary(t *testing.T) {
	s := New()
	var total int
	for range 10 {
		total += len(s.Sample(Segment{DistancePx: 0, DurationMs: 8, SpacingPx: 5, MaxIntervalMs: 16}))
	}
	assert.Equal(t, 5, total, "80ms at one dab per 16ms")
	assert.Equal(t, 0.0, s.DistanceCarry())
}

func TestChannelsMergeAndDedupe(t *testing.T) {
	s := New()
	got := s.Sample(Segment{DistancePx: 20, DurationMs: 32, SpacingPx: 10, MaxIntervalMs: 16})
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5, got[0], 1e-9)
	assert.InDelta(t, 1.0, got[1], 1e-9)

	s = New()
	got = s.Sample(Segment{DistancePx: 30, DurationMs: 20, SpacingPx: 10, MaxIntervalMs: 8})
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i]-got[i-1], mergeEpsilon)
	}
	assert.Len(t, got, 5, "1/3 2/3 1 from distance, 0.4 0.8 from time")
}

func TestDegenerateInputsKeepCarry(t *testing.T) {
	tests := []Segment{
		{DistancePx: 5, SpacingPx: 0},
		{DistancePx: 5, SpacingPx: -1},
		{DistancePx: 0, SpacingPx: 4},
		{DistancePx: math.NaN(), SpacingPx: 4},
		{DistancePx: math.Inf(1), SpacingPx: 4},
		{DistancePx: 5, SpacingPx: math.NaN()},
	}
	for _, seg := range tests {
		s := New()
		s.Sample(Segment{DistancePx: 2, SpacingPx: 4})
		assert.Empty(t, s.Sample(seg))
		assert.InDelta(t, 2, s.DistanceCarry(), 1e-9)
	}
}

func TestCarryCollapsesAtBoundary(t *testing.T) {
	s := New()
	for range 10 {
		s.Sample(Segment{DistancePx: 0.1, SpacingPx: 1})
	}
	// 10 × 0.1 does not sum to exactly 1 in floating point.
	assert.Zero(t, s.DistanceCarry())
}

func TestSamplesInUnitInterval(t *testing.T) {
	s := New()
	dists := []float64{0.3, 7.9, 12.25, 1, 40, 0.01, 3.3}
	for _, d := range dists {
		got := s.Sample(Segment{DistancePx: d, DurationMs: d * 2, SpacingPx: 3, MaxIntervalMs: 5})
		for i, v := range got {
			assert.Greater(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			if i > 0 {
				assert.Greater(t, v, got[i-1])
			}
		}
	}
}

func TestReset(t *testing.T) {
	s := New()
	s.Sample(Segment{DistancePx: 3, DurationMs: 3, SpacingPx: 10, MaxIntervalMs: 10})
	s.ResetDistance()
	assert.Zero(t, s.DistanceCarry())
	assert.NotZero(t, s.TimeCarry())
	s.Reset()
	assert.Zero(t, s.TimeCarry())
}

func TestSamplesPerSegmentBounded(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
	}{
		{"distance", Segment{DistancePx: 1e11, SpacingPx: 4}},
		{"time", Segment{SpacingPx: 4, DurationMs: 1e13, MaxIntervalMs: 16}},
		{"both", Segment{DistancePx: 1e11, SpacingPx: 4, DurationMs: 1e13, MaxIntervalMs: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			got := s.Sample(tt.seg)
			require.Len(t, got, maxSamplesPerSegment)
			assert.Equal(t, 1.0, got[len(got)-1])
			assert.Zero(t, s.DistanceCarry())
			assert.Zero(t, s.TimeCarry())

			// The next full step emits exactly at its end.
			assert.Equal(t, []float64{1}, s.Sample(Segment{DistancePx: 4, SpacingPx: 4}))
		})
	}
}
