package window

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/runqa/pkg/model"
)

func newSeries(t *testing.T, values []float64, entries []float64) *model.MetricSeries {
	t.Helper()
	points := make([]model.SamplePoint, len(values))
	for i, v := range values {
		e := 100.0
		if entries != nil {
			e = entries[i]
		}
		points[i] = model.SamplePoint{Run: i + 1, Value: v, StatErr: 0.1, Entries: e}
	}
	s, err := model.NewMetricSeries("adc_mpv", points)
	require.NoError(t, err)
	return s
}

func TestDetectSpike(t *testing.T) {
	s := newSeries(t, []float64{10, 11, 9, 10, 50, 10, 11, 9, 10, 11, 9}, nil)
	d := NewDetector(DefaultConfig())

	robust := d.Detect(s)
	require.Len(t, robust, s.Len())

	spike := robust[4]
	assert.Equal(t, 5, spike.Run)
	assert.Equal(t, 9, spike.Support)
	assert.Equal(t, 10.0, spike.Median)
	assert.Equal(t, 1.0, spike.MAD)
	assert.InDelta(t, ZScale*40, spike.Z, 1e-3)
	assert.True(t, spike.Strong)
	assert.False(t, spike.Weak)
	assert.True(t, spike.Flagged())
}

func TestDetectWindowExcludesCenter(t *testing.T) {
	// A constant neighborhood gives MAD 0, so any deviation is huge
	s := newSeries(t, []float64{5, 5, 5, 5, 6}, nil)
	r := NewDetector(DefaultConfig()).At(s, 4)

	assert.Equal(t, 4, r.Support)
	assert.Equal(t, 5.0, r.Median)
	assert.Equal(t, 0.0, r.MAD)
	assert.True(t, r.Strong)
}

func TestDetectConstantSeries(t *testing.T) {
	s := newSeries(t, []float64{5, 5, 5, 5, 5, 5}, nil)
	for _, r := range NewDetector(DefaultConfig()).Detect(s) {
		assert.False(t, r.Valid())
		assert.Equal(t, 5.0, r.Median)
		assert.Equal(t, 0.0, r.MAD)
		assert.False(t, r.Flagged())
	}
}

func TestDetectInsufficientSupport(t *testing.T) {
	t.Run("short series", func(t *testing.T) {
		s := newSeries(t, []float64{1, 2, 100}, nil)
		for _, r := range NewDetector(DefaultConfig()).Detect(s) {
			assert.Equal(t, 2, r.Support)
			assert.True(t, math.IsNaN(r.Median))
			assert.True(t, math.IsNaN(r.MAD))
			assert.True(t, math.IsNaN(r.Z))
			assert.False(t, r.Flagged())
		}
	})

	t.Run("neighbors without entries do not count", func(t *testing.T) {
		s := newSeries(t, []float64{1, 2, 3, 100}, []float64{100, 0, 0, 100})
		r := NewDetector(DefaultConfig()).At(s, 3)
		assert.Equal(t, 1, r.Support)
		assert.False(t, r.Valid())
	})
}

func TestDetectMissingValues(t *testing.T) {
	nan := math.NaN()
	s := newSeries(t, []float64{10, 11, nan, 9, 10, 11}, nil)
	robust := NewDetector(DefaultConfig()).Detect(s)

	missing := robust[2]
	assert.Equal(t, 5, missing.Support)
	assert.Equal(t, 10.0, missing.Median)
	assert.True(t, math.IsNaN(missing.Z))
	assert.False(t, missing.Flagged())

	// The missing point never enters another point's window
	for i, r := range robust {
		if i == 2 {
			continue
		}
		assert.Equal(t, 4, r.Support, "point %d", i)
	}
}

func TestClassifyConventions(t *testing.T) {
	tests := []struct {
		name       string
		convention ThresholdConvention
		z          float64
		wantStrong bool
		wantWeak   bool
	}{
		{name: "local quiet", convention: LocalZThresholds, z: 1.5},
		{name: "local weak", convention: LocalZThresholds, z: -2.5, wantWeak: true},
		{name: "local strong at cut", convention: LocalZThresholds, z: 3, wantStrong: true},
		{name: "doc quiet", convention: PipelineDocThresholds, z: 2.5},
		{name: "doc weak", convention: PipelineDocThresholds, z: 4, wantWeak: true},
		{name: "doc strong", convention: PipelineDocThresholds, z: -5, wantStrong: true},
		{name: "nan", convention: LocalZThresholds, z: math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Thresholds = tt.convention
			strong, weak := NewDetector(config).Classify(tt.z)
			assert.Equal(t, tt.wantStrong, strong)
			assert.Equal(t, tt.wantWeak, weak)
		})
	}
}

func TestConventionByName(t *testing.T) {
	c, ok := ConventionByName("local_z")
	assert.True(t, ok)
	assert.Equal(t, LocalZThresholds, c)

	c, ok = ConventionByName("pipeline_doc")
	assert.True(t, ok)
	assert.Equal(t, 5.0, c.Strong)

	_, ok = ConventionByName("bogus")
	assert.False(t, ok)
}

func TestNewDetectorDefaults(t *testing.T) {
	d := NewDetector(Config{})
	assert.Equal(t, DefaultConfig(), d.Config())
}

func TestFlaggedNeighbors(t *testing.T) {
	robust := []model.RobustStats{
		{Z: 0}, {Z: 3}, {Z: 10}, {Z: -2.5}, {Z: math.NaN()}, {Z: 2.1},
	}
	assert.Equal(t, 2, FlaggedNeighbors(robust, 2, 2, 2))
	assert.Equal(t, 1, FlaggedNeighbors(robust, 5, 2, 2))
	assert.Equal(t, 2, FlaggedNeighbors(robust, 0, 2, 2))
	assert.Equal(t, 0, FlaggedNeighbors(robust, 0, 2, 20))
}

func flagRank(r model.RobustStats) int {
	switch {
	case r.Strong:
		return 2
	case r.Weak:
		return 1
	default:
		return 0
	}
}

func TestDetectFlagsMonotonicInZ(t *testing.T) {
	values := []float64{10, 10.4, 9.7, 10.2, 12.5, 9.9, 10.1, 9.5, 14, 10.3, 9.8, 10.6, 7.9, 10, 10.2, 30, 9.6, 10.1}
	robust := NewDetector(DefaultConfig()).Detect(newSeries(t, values, nil))

	var ranks []int
	for _, r := range robust {
		if r.Valid() {
			ranks = append(ranks, flagRank(r))
		}
	}
	require.Contains(t, ranks, 0)
	require.Contains(t, ranks, 2)

	for i, a := range robust {
		for j, b := range robust {
			if !a.Valid() || !b.Valid() {
				continue
			}
			if math.Abs(a.Z) > math.Abs(b.Z) {
				assert.GreaterOrEqual(t, flagRank(a), flagRank(b), "run %d vs run %d", i+1, j+1)
			}
		}
	}
}

func TestDetectIdempotent(t *testing.T) {
	nan := math.NaN()
	s := newSeries(t, []float64{10, 11, nan, 10, 50, 10, 11, 9, nan, 11, 9, 10}, nil)
	d := NewDetector(DefaultConfig())

	first := d.Detect(s)
	second := d.Detect(s)
	require.Len(t, second, len(first))

	for i := range first {
		a, b := first[i], second[i]
		assert.Equal(t, a.Run, b.Run)
		assert.Equal(t, math.Float64bits(a.Median), math.Float64bits(b.Median), "run %d", a.Run)
		assert.Equal(t, math.Float64bits(a.MAD), math.Float64bits(b.MAD), "run %d", a.Run)
		assert.Equal(t, math.Float64bits(a.Z), math.Float64bits(b.Z), "run %d", a.Run)
		assert.Equal(t, a.Weak, b.Weak)
		assert.Equal(t, a.Strong, b.Strong)
		assert.Equal(t, a.Support, b.Support)
	}
}
