package pipeline

import (
	"github.com/tunogya/runqa/pkg/classify"
	"github.com/tunogya/runqa/pkg/control"
	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/verdict"
	"github.com/tunogya/runqa/pkg/window"
)

// Config holds configuration for every analysis stage
type Config struct {
	Window     window.Config
	Trend      feature.TrendConfig
	Control    control.Config
	QC         control.QCConfig
	Pattern    classify.PatternConfig
	EWMALambda float64
	Workers    int // concurrent metrics; 0 means one per metric
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Window:     window.DefaultConfig(),
		Trend:      feature.DefaultTrendConfig(),
		Control:    control.DefaultConfig(),
		QC:         control.DefaultQCConfig(),
		Pattern:    classify.DefaultPatternConfig(),
		EWMALambda: 0.3,
	}
}

// MetricInput is one metric to analyse
type MetricInput struct {
	Series    *model.MetricSeries
	Threshold *model.Threshold // nil means no hard bounds
}

// MetricResult holds everything derived from one metric series
type MetricResult struct {
	Metric   string
	Series   *model.MetricSeries
	Robust   []model.RobustStats
	EWMA     []float64
	Trend    model.TrendStats
	Control  []model.ControlFlag
	QC       []model.QCStatus
	Verdicts []model.RunMetricVerdict
}

// Flagged returns the verdicts that are not GOOD
func (r MetricResult) Flagged() []model.RunMetricVerdict {
	var out []model.RunMetricVerdict
	for _, v := range r.Verdicts {
		if v.Verdict != model.VerdictGood {
			out = append(out, v)
		}
	}
	return out
}

// Records returns one flattened row per point, in run order
func (r MetricResult) Records() []model.PointRecord {
	out := make([]model.PointRecord, r.Series.Len())
	for i, p := range r.Series.Points() {
		out[i] = model.NewPointRecord(r.Metric, p, r.Robust[i], r.EWMA[i], r.Control[i], r.QC[i])
	}
	return out
}

// Analyzer runs all analysis stages over one metric. It holds no mutable
// state, so one Analyzer may serve many goroutines.
type Analyzer struct {
	config   Config
	detector *window.Detector
	trend    *feature.Analyzer
	control  *control.Evaluator
	engine   *verdict.Engine
}

// NewAnalyzer creates a new analyzer. A nil rule set selects the built-in table.
func NewAnalyzer(config Config, rules *classify.RuleSet) *Analyzer {
	if config.EWMALambda <= 0 || config.EWMALambda > 1 {
		config.EWMALambda = DefaultConfig().EWMALambda
	}
	return &Analyzer{
		config:   config,
		detector: window.NewDetector(config.Window),
		trend:    feature.NewAnalyzer(config.Trend),
		control:  control.NewEvaluator(config.Control),
		engine:   verdict.NewEngine(classify.NewClassifier(config.Pattern), rules),
	}
}

// AnalyzeMetric computes robust stats, trend, control flags and verdicts for one metric.
// contexts may be nil.
func (a *Analyzer) AnalyzeMetric(in MetricInput, contexts map[int]model.RunContext) MetricResult {
	s := in.Series
	result := MetricResult{
		Metric:  s.Name(),
		Series:  s,
		Robust:  a.detector.Detect(s),
		EWMA:    feature.EWMA(s.Values(), a.config.EWMALambda),
		Trend:   a.trend.Analyze(s),
		Control: a.control.Evaluate(s),
		QC:      control.QCStatus(s, in.Threshold, a.config.QC),
	}

	result.Verdicts = make([]model.RunMetricVerdict, s.Len())
	for i := range result.Verdicts {
		p := s.At(i)
		ctx := contexts[p.Run]
		ctx.Run = p.Run
		result.Verdicts[i] = a.engine.Evaluate(verdict.Input{
			Metric:  s.Name(),
			Index:   i,
			Point:   p,
			Robust:  result.Robust,
			QC:      &result.QC[i],
			Control: &result.Control[i],
			Trend:   result.Trend,
			Context: ctx,
		})
	}

	return result
}
