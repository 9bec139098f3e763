package data

import (
	"context"
	"fmt"
	"sort"

	"github.com/tunogya/runqa/pkg/model"
)

// SeriesProvider defines the interface for fetching per-run metric series
type SeriesProvider interface {
	// FetchSeries returns the run-ordered series of one metric.
	// A metric without rows yields model.ErrEmptySeries.
	FetchSeries(ctx context.Context, metric string) (*model.MetricSeries, error)
}

// MemoryProvider implements SeriesProvider with in-memory storage
type MemoryProvider struct {
	points map[string][]model.SamplePoint
}

// NewMemoryProvider creates a new in-memory series provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		points: make(map[string][]model.SamplePoint),
	}
}

// AddPoints adds points to a metric
func (p *MemoryProvider) AddPoints(metric string, points ...model.SamplePoint) {
	p.points[metric] = append(p.points[metric], points...)
}

// Metrics returns the known metric names, sorted
func (p *MemoryProvider) Metrics() []string {
	names := make([]string, 0, len(p.points))
	for name := range p.points {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FetchSeries builds the series of one metric
func (p *MemoryProvider) FetchSeries(ctx context.Context, metric string) (*model.MetricSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := model.NewMetricSeries(metric, p.points[metric])
	if err != nil {
		return nil, fmt.Errorf("failed to build series: %w", err)
	}
	return s, nil
}
