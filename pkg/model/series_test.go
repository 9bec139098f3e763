package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricSeries(t *testing.T) {
	t.Run("sorts by run", func(t *testing.T) {
		s, err := NewMetricSeries("adc_mpv", []SamplePoint{
			{Run: 3, Value: 30, Entries: 1},
			{Run: 1, Value: 10, Entries: 1},
			{Run: 2, Value: 20, Entries: 1},
		})
		require.NoError(t, err)

		assert.Equal(t, "adc_mpv", s.Name())
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, []int{1, 2, 3}, s.Runs())
		assert.Equal(t, []float64{10, 20, 30}, s.Values())

		i, ok := s.IndexOf(3)
		assert.True(t, ok)
		assert.Equal(t, 2, i)

		p, ok := s.ByRun(2)
		assert.True(t, ok)
		assert.Equal(t, 20.0, p.Value)

		_, ok = s.ByRun(99)
		assert.False(t, ok)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewMetricSeries("x", nil)
		assert.ErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("duplicate run", func(t *testing.T) {
		_, err := NewMetricSeries("x", []SamplePoint{
			{Run: 1, Value: 1},
			{Run: 1, Value: 2},
		})
		assert.ErrorIs(t, err, ErrDuplicateRun)
	})

	t.Run("input is not aliased", func(t *testing.T) {
		points := []SamplePoint{{Run: 2, Value: 2}, {Run: 1, Value: 1}}
		s, err := NewMetricSeries("x", points)
		require.NoError(t, err)

		points[0].Value = 100
		assert.Equal(t, []float64{1, 2}, s.Values())

		out := s.Points()
		out[0].Value = -1
		assert.Equal(t, 1.0, s.At(0).Value)
	})
}

func TestMetricSeriesFinite(t *testing.T) {
	s, err := NewMetricSeries("x", []SamplePoint{
		{Run: 1, Value: 1, Entries: 5},
		{Run: 2, Value: math.NaN(), Entries: 0},
		{Run: 3, Value: math.Inf(1), Entries: 5},
		{Run: 4, Value: 4, Entries: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 4}, s.FiniteValues())
	assert.Len(t, s.FinitePoints(), 2)
	assert.Len(t, s.Values(), 4)

	assert.True(t, s.At(0).HasSupport())
	assert.False(t, s.At(1).HasSupport())
	assert.False(t, s.At(2).IsFinite())
	assert.True(t, s.At(3).IsFinite())
	assert.False(t, s.At(3).HasSupport())
}

func TestInverseVarianceWeight(t *testing.T) {
	tests := []struct {
		name    string
		statErr float64
		want    float64
	}{
		{name: "regular", statErr: 0.5, want: 4},
		{name: "zero", statErr: 0, want: 1},
		{name: "negative", statErr: -1, want: 1},
		{name: "nan", statErr: math.NaN(), want: 1},
		{name: "inf", statErr: math.Inf(1), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SamplePoint{StatErr: tt.statErr}
			assert.Equal(t, tt.want, p.InverseVarianceWeight())
		})
	}
}

func TestTrendStatsInterpretation(t *testing.T) {
	tests := []struct {
		name  string
		trend TrendStats
		want  string
	}{
		{
			name: "significant slope",
			trend: TrendStats{
				Slope:  Estimate{Value: 1, Err: 0.01, Valid: true},
				PValue: 0,
			},
			want: "Significant trend detected",
		},
		{
			name: "strong changepoint",
			trend: TrendStats{
				Slope:       Estimate{Value: 0.1, Err: 1, Valid: true},
				PValue:      0.5,
				Changepoint: &Changepoint{Run: 11, Strong: true},
			},
			want: "Level shift at run 11",
		},
		{
			name: "weak changepoint",
			trend: TrendStats{
				Slope:       NoEstimate,
				PValue:      1,
				Changepoint: &Changepoint{Run: 11},
			},
			want: "Stable",
		},
		{
			name: "zero slope is no trend",
			trend: TrendStats{
				Slope:  Estimate{Value: 0, Err: 0, Valid: true},
				PValue: 0,
			},
			want: "Stable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trend.Interpretation())
		})
	}
}

func TestThresholdBreached(t *testing.T) {
	th := Threshold{Metric: "x", Lo: 0, Hi: 10}
	assert.False(t, th.Breached(5))
	assert.False(t, th.Breached(0))
	assert.False(t, th.Breached(10))
	assert.True(t, th.Breached(-0.1))
	assert.True(t, th.Breached(10.1))
	assert.False(t, th.Breached(math.NaN()))

	u := Unbounded("x")
	assert.False(t, u.Breached(1e300))
	assert.False(t, u.Breached(-1e300))
}

func TestPatternSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, PatternSpike.Severity())
	assert.Equal(t, SeverityCritical, PatternSustainedShift.Severity())
	assert.Equal(t, SeverityWarning, PatternStepChange.Severity())
	assert.Equal(t, SeverityWarning, PatternGradualDrift.Severity())
	assert.Equal(t, SeverityInfo, PatternIsolatedOutlier.Severity())
	assert.Equal(t, SeverityInfo, PatternStatisticalFluctuation.Severity())
	assert.Equal(t, SeverityInfo, PatternNormal.Severity())
}

func TestRunVerdictSummary(t *testing.T) {
	rv := RunVerdict{Run: 4, Verdict: VerdictBad, NGood: 2, NSuspect: 1, NBad: 1, WorstMetric: "adc_mpv"}
	assert.Equal(t, 4, rv.Total())
	assert.Equal(t, "2 good, 1 suspect, 1 bad (worst: adc_mpv)", rv.Summary())

	rv = RunVerdict{Run: 5, Verdict: VerdictGood, NGood: 3}
	assert.Equal(t, "3 good, 0 suspect, 0 bad", rv.Summary())
}
