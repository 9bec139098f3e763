package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tunogya/runqa/pkg/model"
)

// DefaultSegmentsPattern names per-segment files after their metric
const DefaultSegmentsPattern = "metrics_%s_segments.csv"

// SegmentProvider implements SeriesProvider by folding per-segment files into
// per-run points. It keeps the segment spread of every metric it has read.
type SegmentProvider struct {
	dir     string
	pattern string
	methods map[string]Method

	mu          sync.Mutex
	consistency map[string][]SegmentCV
}

// NewSegmentProvider creates a provider reading dir/fmt.Sprintf(pattern, metric).
// Each metric is folded with the method named in defs, wmean when absent.
func NewSegmentProvider(dir, pattern string, defs []MetricDef) *SegmentProvider {
	if pattern == "" {
		pattern = DefaultSegmentsPattern
	}
	methods := make(map[string]Method, len(defs))
	for _, d := range defs {
		methods[d.Name] = Method(d.Method)
	}
	return &SegmentProvider{
		dir:         dir,
		pattern:     pattern,
		methods:     methods,
		consistency: make(map[string][]SegmentCV),
	}
}

// Path returns the file a metric is read from
func (p *SegmentProvider) Path(metric string) string {
	return filepath.Join(p.dir, fmt.Sprintf(p.pattern, metric))
}

// FetchSeries reads and folds the segment file of a metric.
// A missing file is reported as model.ErrEmptySeries.
func (p *SegmentProvider) FetchSeries(ctx context.Context, metric string) (*model.MetricSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(p.Path(metric))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("metric %s: %w", metric, model.ErrEmptySeries)
		}
		return nil, fmt.Errorf("failed to open segments file: %w", err)
	}
	defer file.Close()

	rows, err := ReadSegmentsCSV(file)
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", metric, err)
	}

	points, err := AggregateSegments(rows, p.methods[metric])
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", metric, err)
	}

	p.mu.Lock()
	p.consistency[metric] = SegmentConsistency(rows)
	p.mu.Unlock()

	return model.NewMetricSeries(metric, points)
}

// Consistency returns the segment spread of every metric read so far
func (p *SegmentProvider) Consistency() map[string][]SegmentCV {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string][]SegmentCV, len(p.consistency))
	for k, v := range p.consistency {
		out[k] = v
	}
	return out
}
