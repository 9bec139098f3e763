package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tunogya/runqa/pkg/classify"
	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/metrics"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/verdict"
)

// ErrNoMetrics is returned when a pass has nothing to analyse
var ErrNoMetrics = errors.New("no metric series to analyse")

// Result is the outcome of one analysis pass
type Result struct {
	PassID       string
	StartedAt    time.Time
	Metrics      []MetricResult // in input order
	Runs         []model.RunVerdict
	Fingerprints []model.RunFingerprint
}

// Verdicts returns every (run, metric) verdict, metric-major
func (r *Result) Verdicts() []model.RunMetricVerdict {
	var out []model.RunMetricVerdict
	for _, m := range r.Metrics {
		out = append(out, m.Verdicts...)
	}
	return out
}

// Tally counts run verdicts
func (r *Result) Tally() verdict.Tally {
	return verdict.Count(r.Runs)
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner's logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithWorkers bounds the number of metrics analysed concurrently
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// Runner fans metric analysis out over goroutines and folds the results
type Runner struct {
	analyzer      *Analyzer
	fingerprinter *feature.Fingerprinter
	logger        *zap.Logger
	workers       int
}

// NewRunner creates a new runner
func NewRunner(config Config, rules *classify.RuleSet, opts ...Option) *Runner {
	r := &Runner{
		analyzer:      NewAnalyzer(config, rules),
		fingerprinter: feature.NewFingerprinter(),
		logger:        zap.NewNop(),
		workers:       config.Workers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadInputs fetches every named metric from provider. Metrics without data
// or with a repeated run are skipped with a warning; any other provider error
// aborts the load.
func (r *Runner) LoadInputs(ctx context.Context, provider data.SeriesProvider, names []string, thresholds map[string]model.Threshold) ([]MetricInput, error) {
	series := make([]*model.MetricSeries, len(names))

	g, gCtx := errgroup.WithContext(ctx)
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, name := range names {
		g.Go(func() error {
			s, err := provider.FetchSeries(gCtx, name)
			switch {
			case errors.Is(err, model.ErrEmptySeries):
				r.logger.Warn("Skipping metric without data", zap.String("metric", name), zap.Error(err))
				metrics.MetricsAnalyzed.WithLabelValues("skipped").Inc()
				return nil
			case errors.Is(err, model.ErrDuplicateRun):
				r.logger.Warn("Skipping metric with repeated runs", zap.String("metric", name), zap.Error(err))
				metrics.MetricsAnalyzed.WithLabelValues("skipped").Inc()
				return nil
			case err != nil:
				return fmt.Errorf("failed to fetch %s: %w", name, err)
			}
			series[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inputs := make([]MetricInput, 0, len(names))
	for _, s := range series {
		if s == nil {
			continue
		}
		in := MetricInput{Series: s}
		if t, ok := thresholds[s.Name()]; ok {
			in.Threshold = &t
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// Run analyses every input and rolls the verdicts up per run
func (r *Runner) Run(ctx context.Context, inputs []MetricInput, contexts map[int]model.RunContext) (*Result, error) {
	if len(inputs) == 0 {
		return nil, ErrNoMetrics
	}

	result := &Result{
		PassID:    uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Metrics:   make([]MetricResult, len(inputs)),
	}
	logger := r.logger.With(zap.String("pass_id", result.PassID))
	logger.Info("Starting analysis pass", zap.Int("metrics", len(inputs)))

	g, gCtx := errgroup.WithContext(ctx)
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, in := range inputs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			start := time.Now()
			mr := r.analyzer.AnalyzeMetric(in, contexts)
			metrics.AnalysisDuration.WithLabelValues("metric").Observe(time.Since(start).Seconds())
			metrics.MetricsAnalyzed.WithLabelValues("ok").Inc()

			flagged := mr.Flagged()
			logger.Debug("Analysed metric",
				zap.String("metric", mr.Metric),
				zap.Int("points", mr.Series.Len()),
				zap.Int("flagged", len(flagged)),
				zap.String("trend", mr.Trend.Interpretation()),
			)
			result.Metrics[i] = mr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis pass %s: %w", result.PassID, err)
	}

	all := result.Verdicts()
	for _, v := range all {
		metrics.PointVerdicts.WithLabelValues(string(v.Verdict), string(v.Pattern)).Inc()
	}

	result.Runs = verdict.Rollup(all)
	runVerdicts := make(map[int]model.Verdict, len(result.Runs))
	for _, rv := range result.Runs {
		runVerdicts[rv.Run] = rv.Verdict
		metrics.RunVerdicts.WithLabelValues(string(rv.Verdict)).Inc()
	}

	columns := make([]feature.Column, len(result.Metrics))
	for i, m := range result.Metrics {
		z := make(map[int]float64, len(m.Robust))
		for _, rs := range m.Robust {
			z[rs.Run] = rs.Z
		}
		columns[i] = feature.Column{Metric: m.Metric, Z: z}
	}
	result.Fingerprints = r.fingerprinter.Build(columns, runVerdicts)

	elapsed := time.Since(result.StartedAt)
	metrics.AnalysisDuration.WithLabelValues("pass").Observe(elapsed.Seconds())
	metrics.LastPassTimestamp.SetToCurrentTime()

	tally := result.Tally()
	logger.Info("Analysis pass complete",
		zap.Int("runs", tally.Total()),
		zap.Int("good", tally.Good),
		zap.Int("suspect", tally.Suspect),
		zap.Int("bad", tally.Bad),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}
