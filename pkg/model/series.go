package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrEmptySeries is returned when a series is built from zero rows
	ErrEmptySeries = errors.New("empty series")
	// ErrDuplicateRun is returned when a series holds two points for one run
	ErrDuplicateRun = errors.New("duplicate run in series")
)

// SamplePoint is one per-run measurement of a metric
type SamplePoint struct {
	Run     int     `json:"run"`
	Value   float64 `json:"value"`    // NaN marks a missing measurement
	StatErr float64 `json:"stat_err"` // statistical uncertainty of Value
	Entries float64 `json:"entries"`  // number of entries behind Value, used as support weight
}

// IsFinite returns true if the point carries a usable value
func (p SamplePoint) IsFinite() bool {
	return !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

// HasSupport returns true if the point is finite and backed by at least one entry
func (p SamplePoint) HasSupport() bool {
	return p.IsFinite() && p.Entries > 0
}

// InverseVarianceWeight returns 1/stat_err², or 1 when stat_err is unusable
func (p SamplePoint) InverseVarianceWeight() float64 {
	if p.StatErr <= 0 || math.IsNaN(p.StatErr) || math.IsInf(p.StatErr, 0) {
		return 1
	}
	return 1 / (p.StatErr * p.StatErr)
}

// MetricSeries is the run-ordered view of one metric's measurements.
// It is read-only once constructed.
type MetricSeries struct {
	name   string
	points []SamplePoint
	index  map[int]int // run -> position
}

// NewMetricSeries sorts points by run and builds a series.
// It fails with ErrEmptySeries for zero points and ErrDuplicateRun when a run repeats.
func NewMetricSeries(name string, points []SamplePoint) (*MetricSeries, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("metric %s: %w", name, ErrEmptySeries)
	}

	sorted := make([]SamplePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Run < sorted[j].Run
	})

	index := make(map[int]int, len(sorted))
	for i, p := range sorted {
		if _, ok := index[p.Run]; ok {
			return nil, fmt.Errorf("metric %s run %d: %w", name, p.Run, ErrDuplicateRun)
		}
		index[p.Run] = i
	}

	return &MetricSeries{
		name:   name,
		points: sorted,
		index:  index,
	}, nil
}

// Name returns the metric name
func (s *MetricSeries) Name() string {
	return s.name
}

// Len returns the number of points, including missing ones
func (s *MetricSeries) Len() int {
	return len(s.points)
}

// At returns the point at position i
func (s *MetricSeries) At(i int) SamplePoint {
	return s.points[i]
}

// Points returns a copy of the ordered points
func (s *MetricSeries) Points() []SamplePoint {
	out := make([]SamplePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Runs returns the ordered run identifiers
func (s *MetricSeries) Runs() []int {
	runs := make([]int, len(s.points))
	for i, p := range s.points {
		runs[i] = p.Run
	}
	return runs
}

// Values returns the ordered values, NaNs included
func (s *MetricSeries) Values() []float64 {
	values := make([]float64, len(s.points))
	for i, p := range s.points {
		values[i] = p.Value
	}
	return values
}

// FiniteValues returns the ordered values with missing measurements removed
func (s *MetricSeries) FiniteValues() []float64 {
	values := make([]float64, 0, len(s.points))
	for _, p := range s.points {
		if p.IsFinite() {
			values = append(values, p.Value)
		}
	}
	return values
}

// FinitePoints returns the ordered points whose value is finite
func (s *MetricSeries) FinitePoints() []SamplePoint {
	out := make([]SamplePoint, 0, len(s.points))
	for _, p := range s.points {
		if p.IsFinite() {
			out = append(out, p)
		}
	}
	return out
}

// ByRun returns the point recorded for run, if any
func (s *MetricSeries) ByRun(run int) (SamplePoint, bool) {
	i, ok := s.index[run]
	if !ok {
		return SamplePoint{}, false
	}
	return s.points[i], true
}

// IndexOf returns the position of run in the series
func (s *MetricSeries) IndexOf(run int) (int, bool) {
	i, ok := s.index[run]
	return i, ok
}
