package feature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinite(t *testing.T) {
	got := Finite([]float64{1, math.NaN(), 2, math.Inf(1), math.Inf(-1), 3})
	assert.Equal(t, []float64{1, 2, 3}, got)
	assert.Empty(t, Finite(nil))
}

func TestMedianMAD(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		wantMedian float64
		wantMAD    float64
	}{
		{name: "odd", values: []float64{1, 2, 3, 4, 100}, wantMedian: 3, wantMAD: 1},
		{name: "even", values: []float64{1, 2, 3, 4}, wantMedian: 2.5, wantMAD: 1},
		{name: "constant", values: []float64{5, 5, 5}, wantMedian: 5, wantMAD: 0},
		{name: "single", values: []float64{7}, wantMedian: 7, wantMAD: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			median, mad := MedianMAD(tt.values)
			assert.InDelta(t, tt.wantMedian, median, 1e-12)
			assert.InDelta(t, tt.wantMAD, mad, 1e-12)
		})
	}

	t.Run("empty", func(t *testing.T) {
		median, mad := MedianMAD(nil)
		assert.True(t, math.IsNaN(median))
		assert.True(t, math.IsNaN(mad))
	})
}

func TestRobustCenter(t *testing.T) {
	median, sigma := RobustCenter([]float64{1, 2, math.NaN(), 3, 4, 100})
	assert.InDelta(t, 3, median, 1e-12)
	assert.InDelta(t, MADScale, sigma, 1e-12)

	median, sigma = RobustCenter([]float64{2, 2, 2})
	assert.Equal(t, 2.0, median)
	assert.Equal(t, 0.0, sigma)

	median, sigma = RobustCenter([]float64{math.NaN()})
	assert.True(t, math.IsNaN(median))
	assert.True(t, math.IsNaN(sigma))
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), std, 1e-12)

	mean, std = MeanStd([]float64{3})
	assert.Equal(t, 3.0, mean)
	assert.Equal(t, 0.0, std)

	mean, _ = MeanStd(nil)
	assert.True(t, math.IsNaN(mean))
}

func TestWeightedMean(t *testing.T) {
	mean, err := WeightedMean([]float64{1, 3}, []float64{1, 1})
	assert.InDelta(t, 2, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), err, 1e-12)

	// err 0.5 weighs 4, err 1 weighs 1
	mean, _ = WeightedMean([]float64{1, 6}, []float64{1, 0.5})
	assert.InDelta(t, 5, mean, 1e-12)

	// unusable errors fall back to unit weight
	mean, _ = WeightedMean([]float64{1, 3}, []float64{0, math.Inf(1)})
	assert.InDelta(t, 2, mean, 1e-12)
}

func TestEWMA(t *testing.T) {
	got := EWMA([]float64{math.NaN(), 1, math.NaN(), 3, 5}, 0.5)

	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, 1, got[1], 1e-12)
	assert.True(t, math.IsNaN(got[2]))
	assert.InDelta(t, 2, got[3], 1e-12)
	assert.InDelta(t, 3.5, got[4], 1e-12)
}
