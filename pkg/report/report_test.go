package report

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/pipeline"
)

var wobble = []float64{0.0, 0.8, -0.6, 0.3, -0.9, 0.5, -0.2, 0.9, -0.4, 0.1}

// newResult analyses a spiking adc_mpv and a quiet hits_asym over runs 1-20
func newResult(t *testing.T) *pipeline.Result {
	t.Helper()
	provider := data.NewMemoryProvider()
	for i := 0; i < 20; i++ {
		spike := 100 + wobble[i%10]
		if i == 9 {
			spike = 130
		}
		provider.AddPoints("adc_mpv", model.SamplePoint{Run: i + 1, Value: spike, StatErr: 0.5, Entries: 1000})
		provider.AddPoints("hits_asym", model.SamplePoint{Run: i + 1, Value: 50 + wobble[i%10], StatErr: 0.5, Entries: 1000})
	}

	ctx := context.Background()
	runner := pipeline.NewRunner(pipeline.DefaultConfig(), nil)
	inputs, err := runner.LoadInputs(ctx, provider, []string{"adc_mpv", "hits_asym"}, nil)
	require.NoError(t, err)
	res, err := runner.Run(ctx, inputs, nil)
	require.NoError(t, err)
	return res
}

func lines(b *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
}

func TestWriteMetricCSV(t *testing.T) {
	res := newResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteMetricCSV(&buf, res.Metrics[0]))

	rows := lines(&buf)
	require.Len(t, rows, 21)
	assert.Equal(t, "run,value,stat_err,entries,neighbors_median,neighbors_mad,z_local,is_outlier_weak,is_outlier_strong,ewma,shewhart_ooc,cusum_pos,cusum_neg,control_flag,z_global,qc_status,qc_reason", rows[0])

	spike := strings.Split(rows[10], ",")
	assert.Equal(t, "10", spike[0])
	assert.Equal(t, "130", spike[1])
	assert.Equal(t, "0", spike[7])
	assert.Equal(t, "1", spike[8])
	assert.Equal(t, "1", spike[10])
	assert.Equal(t, "WARN", spike[13])
	assert.Equal(t, "WARN", spike[15])
	assert.Equal(t, "robust_z", spike[16])
}

func TestWriteConsistencySummary(t *testing.T) {
	res := newResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteConsistencySummary(&buf, res.Metrics))

	rows := lines(&buf)
	require.Len(t, rows, 3)
	assert.Equal(t, "metric,N,median,robust_sigma,slope,eslope,pval,cp_run,dBIC,cp_strong,interpretation", rows[0])
	assert.True(t, strings.HasPrefix(rows[1], "adc_mpv,20,"))
	assert.True(t, strings.HasSuffix(rows[2], ",0,Stable"))
}

func TestWriteVerdicts(t *testing.T) {
	res := newResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteVerdicts(&buf, res.Verdicts()))

	rows := lines(&buf)
	require.Len(t, rows, 41)
	assert.Equal(t, "run,metric,verdict,severity,pattern,cause,action,z_local,value,no_data", rows[0])
	assert.True(t, strings.HasPrefix(rows[10], "10,adc_mpv,BAD,critical,spike,"))
	assert.Contains(t, rows[10], "130.000,0")
	assert.Equal(t, "1,hits_asym,GOOD,info,normal,All checks passed,No action needed,-0.405,50.000,0", rows[21])
}

func TestWriteVerdictsJoinsCauses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVerdicts(&buf, []model.RunMetricVerdict{{
		Run:      3,
		Metric:   "cluster_size",
		Verdict:  model.VerdictSuspect,
		Severity: model.SeverityWarning,
		Pattern:  model.PatternStepChange,
		Causes:   []string{"one", "two"},
		Action:   "look",
		Z:        math.NaN(),
		Value:    math.NaN(),
		NoData:   true,
	}}))

	assert.Equal(t, "3,cluster_size,SUSPECT,warning,step_change,one; two,look,nan,nan,1", lines(&buf)[1])
}

func TestWriteRunVerdicts(t *testing.T) {
	res := newResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteRunVerdicts(&buf, res.Runs))

	rows := lines(&buf)
	require.Len(t, rows, 21)
	assert.Equal(t, "run,verdict,n_good,n_suspect,n_bad,worst_metric,summary", rows[0])
	assert.Equal(t, `10,BAD,1,0,1,adc_mpv,"1 good, 0 suspect, 1 bad (worst: adc_mpv)"`, rows[10])
	assert.Equal(t, `1,GOOD,2,0,0,,"2 good, 0 suspect, 0 bad"`, rows[1])
}

func TestWriteSegmentConsistency(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSegmentConsistency(&buf, map[string][]data.SegmentCV{
		"b": {{Run: 1, N: 2, Mean: 10, CV: 0.5}},
		"a": {{Run: 1, N: 1, Mean: 4, CV: math.NaN()}},
	}))

	assert.Equal(t, []string{
		"metric,run,n_segments,mean,cv",
		"a,1,1,4,nan",
		"b,1,2,10,0.5",
	}, lines(&buf))
}

func TestMarkdown(t *testing.T) {
	res := newResult(t)
	md := string(Markdown(res, map[int]model.RunContext{10: {Run: 10, Dead: 2, Total: 56}}))

	for _, section := range []string{
		"# QA Verdict Report",
		"## Summary",
		"## Per-Run Verdicts",
		"## Flagged Runs: Detailed Diagnosis",
		"## Metric Health Overview",
		"## Trend Analysis",
	} {
		assert.Contains(t, md, section)
	}

	assert.Contains(t, md, res.PassID)
	assert.Contains(t, md, "| Total runs | 20 |")
	assert.Contains(t, md, "| BAD | 1 |")
	assert.Contains(t, md, "**Overall: 1 run(s) recommended for exclusion from physics analysis.**")
	assert.Contains(t, md, "| 10 | **BAD** | 1 | 0 | 1 | adc_mpv |")
	assert.Contains(t, md, "### Run 10: BAD")
	assert.Contains(t, md, "**Detector health**: 2 dead, 0 hot (of 56 total)")
	assert.Contains(t, md, "- Pattern: spike")
	assert.Contains(t, md, "| hits_asym | 20 | 0 | 0.0% |")
	assert.NotContains(t, md, "### Run 1: ")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a\\|b", escapeCell("a|b"))
}

func TestHTML(t *testing.T) {
	page, err := HTML([]byte("# QA Verdict Report\n\n| Run | Verdict |\n|---|---|\n| 4 | **BAD** |\n"))
	require.NoError(t, err)

	html := string(page)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<h1>QA Verdict Report</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<strong>BAD</strong>")
	assert.True(t, strings.HasSuffix(html, "</html>\n"))
}

func TestWriterWriteAll(t *testing.T) {
	res := newResult(t)
	dir := filepath.Join(t.TempDir(), "qa_out")

	w, err := NewWriter(dir, true)
	require.NoError(t, err)

	written, err := w.WriteAll(res, map[string][]data.SegmentCV{"adc_mpv": {{Run: 1, N: 2, Mean: 1, CV: 0.1}}}, nil)
	require.NoError(t, err)

	for _, name := range []string{
		MetricFileName("adc_mpv"),
		MetricFileName("hits_asym"),
		FileConsistencySummary,
		FileVerdicts,
		FileRunVerdicts,
		FileSegmentConsistency,
		FileVerdictMarkdown,
		FileVerdictHTML,
	} {
		path := filepath.Join(dir, name)
		assert.Contains(t, written, path)
		_, err := os.Stat(path)
		assert.NoError(t, err, name)
	}
	assert.Equal(t, "metrics_adc_mpv_perrun_z.csv", MetricFileName("adc_mpv"))
}

func TestWriterWithoutHTML(t *testing.T) {
	res := newResult(t)
	dir := t.TempDir()

	w, err := NewWriter(dir, false)
	require.NoError(t, err)
	written, err := w.WriteAll(res, nil, nil)
	require.NoError(t, err)

	assert.Len(t, written, 6)
	_, err = os.Stat(filepath.Join(dir, FileVerdictHTML))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, FileSegmentConsistency))
	assert.True(t, os.IsNotExist(err))
}
