package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis metrics, exported through the node-exporter textfile collector
var (
	MetricsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runqa_metrics_analyzed_total",
			Help: "Total number of metric series analysed",
		},
		[]string{"status"}, // ok, skipped
	)

	PointVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runqa_point_verdicts_total",
			Help: "Total number of (run, metric) verdicts by class",
		},
		[]string{"verdict", "pattern"},
	)

	RunVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runqa_run_verdicts_total",
			Help: "Total number of run verdicts by class",
		},
		[]string{"verdict"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runqa_analysis_duration_seconds",
			Help:    "Duration of analysis stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		},
		[]string{"stage"}, // metric, pass
	)

	RulesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runqa_rules_skipped_total",
			Help: "Total number of malformed cause/action rules skipped while loading",
		},
	)

	LastPassTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runqa_last_pass_timestamp_seconds",
			Help: "Unix time of the last completed analysis pass",
		},
	)
)

// WriteTextfile writes every registered metric to path in the text exposition format
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
