package feature

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// MADScale converts a MAD into a Gaussian-equivalent standard deviation
const MADScale = 1.4826

// Finite returns the finite entries of values, in order
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Median returns the median of values, or NaN when empty
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m, err := stats.Median(values)
	if err != nil {
		return math.NaN()
	}
	return m
}

// MedianMAD returns the median and the median absolute deviation of values.
// Both are NaN when values is empty.
func MedianMAD(values []float64) (median, mad float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	median = Median(values)
	mad, err := stats.MedianAbsoluteDeviationPopulation(values)
	if err != nil {
		return median, math.NaN()
	}
	return median, mad
}

// RobustCenter returns the median of the finite values and the MAD-based
// sigma. sigma is 0 for a constant series and NaN with no finite values.
func RobustCenter(values []float64) (median, sigma float64) {
	median, mad := MedianMAD(Finite(values))
	return median, MADScale * mad
}

// MeanStd returns the mean and unbiased standard deviation of values
func MeanStd(values []float64) (mean, std float64) {
	switch len(values) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// WeightedMean returns the inverse-variance weighted mean of values and its
// error sqrt(1/Σw). Non-positive or non-finite errors fall back to unit weight.
func WeightedMean(values, errs []float64) (mean, err float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	weights := make([]float64, len(values))
	sw := 0.0
	for i := range values {
		w := 1.0
		if i < len(errs) && errs[i] > 0 && !math.IsInf(errs[i], 0) {
			w = 1 / (errs[i] * errs[i])
		}
		weights[i] = w
		sw += w
	}
	return stat.Mean(values, weights), math.Sqrt(1 / sw)
}

// EWMA returns the exponentially weighted moving average of values.
// Missing values yield NaN and leave the running average untouched.
func EWMA(values []float64, lambda float64) []float64 {
	out := make([]float64, len(values))
	m := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = math.NaN()
			continue
		}
		if math.IsNaN(m) {
			m = v
		}
		m = lambda*v + (1-lambda)*m
		out[i] = m
	}
	return out
}
