package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/pipeline"
)

// Output file names
const (
	FileVerdicts           = "verdicts.csv"
	FileRunVerdicts        = "run_verdicts.csv"
	FileConsistencySummary = "consistency_summary.csv"
	FileSegmentConsistency = "segment_consistency.csv"
	FileVerdictMarkdown    = "VERDICT.md"
	FileVerdictHTML        = "VERDICT.html"
	metricFilePattern      = "metrics_%s_perrun_z.csv"
)

// MetricFileName returns the name of the augmented per-run file of a metric
func MetricFileName(metric string) string {
	return fmt.Sprintf(metricFilePattern, metric)
}

// WriteMetricCSV writes the per-run series of one metric with every derived column
func WriteMetricCSV(w io.Writer, m pipeline.MetricResult) error {
	writer := csv.NewWriter(w)
	header := []string{
		"run", "value", "stat_err", "entries",
		"neighbors_median", "neighbors_mad", "z_local", "is_outlier_weak", "is_outlier_strong",
		"ewma", "shewhart_ooc", "cusum_pos", "cusum_neg", "control_flag",
		"z_global", "qc_status", "qc_reason",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range m.Records() {
		record := []string{
			strconv.Itoa(r.Run),
			formatFloat(r.Value),
			formatFloat(r.StatErr),
			formatFloat(r.Entries),
			formatFloat(r.Median),
			formatFloat(r.MAD),
			formatFloat(r.Z),
			formatBool(r.Weak),
			formatBool(r.Strong),
			formatFloat(r.EWMA),
			formatBool(r.ShewhartOOC),
			formatFloat(r.CusumPos),
			formatFloat(r.CusumNeg),
			string(r.ControlFlag),
			formatFloat(r.ZGlobal),
			string(r.QCStatus),
			r.QCReason,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write run %d: %w", r.Run, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteConsistencySummary writes one trend summary row per metric
func WriteConsistencySummary(w io.Writer, metrics []pipeline.MetricResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"metric", "N", "median", "robust_sigma", "slope", "eslope", "pval", "cp_run", "dBIC", "cp_strong", "interpretation"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, m := range metrics {
		t := m.Trend
		cpRun, dBIC, strong := "", "", false
		if t.Changepoint != nil {
			cpRun = strconv.Itoa(t.Changepoint.Run)
			dBIC = formatFloat(t.Changepoint.DeltaBIC)
			strong = t.Changepoint.Strong
		}
		record := []string{
			m.Metric,
			strconv.Itoa(t.N),
			formatFloat(t.Median),
			formatFloat(t.RobustSigma),
			formatFloat(t.Slope.Value),
			formatFloat(t.Slope.Err),
			formatFloat(t.PValue),
			cpRun,
			dBIC,
			formatBool(strong),
			t.Interpretation(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", m.Metric, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteVerdicts writes one row per (run, metric) verdict, causes joined with "; "
func WriteVerdicts(w io.Writer, verdicts []model.RunMetricVerdict) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"run", "metric", "verdict", "severity", "pattern", "cause", "action", "z_local", "value", "no_data"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, v := range verdicts {
		record := []string{
			strconv.Itoa(v.Run),
			v.Metric,
			string(v.Verdict),
			string(v.Severity),
			string(v.Pattern),
			strings.Join(v.Causes, "; "),
			v.Action,
			formatFixed(v.Z, 3),
			formatFixed(v.Value, 3),
			formatBool(v.NoData),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write verdict: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteRunVerdicts writes one row per run
func WriteRunVerdicts(w io.Writer, runs []model.RunVerdict) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"run", "verdict", "n_good", "n_suspect", "n_bad", "worst_metric", "summary"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rv := range runs {
		record := []string{
			strconv.Itoa(rv.Run),
			string(rv.Verdict),
			strconv.Itoa(rv.NGood),
			strconv.Itoa(rv.NSuspect),
			strconv.Itoa(rv.NBad),
			rv.WorstMetric,
			rv.Summary(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write run %d: %w", rv.Run, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteSegmentConsistency writes the per-run segment spread of every metric, metrics sorted
func WriteSegmentConsistency(w io.Writer, segments map[string][]data.SegmentCV) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"metric", "run", "n_segments", "mean", "cv"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	names := make([]string, 0, len(segments))
	for name := range segments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, c := range segments[name] {
			record := []string{
				name,
				strconv.Itoa(c.Run),
				strconv.Itoa(c.N),
				formatFloat(c.Mean),
				formatFloat(c.CV),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write %s run %d: %w", name, c.Run, err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
