package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tunogya/runqa/pkg/classify"
	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/verdict"
)

var wobble = []float64{0.0, 0.8, -0.6, 0.3, -0.9, 0.5, -0.2, 0.9, -0.4, 0.1}

func points(values []float64) []model.SamplePoint {
	out := make([]model.SamplePoint, len(values))
	for i, v := range values {
		out[i] = model.SamplePoint{Run: i + 1, Value: v, StatErr: 0.5, Entries: 1000}
	}
	return out
}

func spikeValues() []float64 {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100 + wobble[i%10]
	}
	values[9] = 130
	return values
}

func stepValues() []float64 {
	values := make([]float64, 20)
	for i := range values {
		level := 10.0
		if i >= 10 {
			level = 20
		}
		values[i] = level + 0.5*wobble[i%10]
	}
	return values
}

func rampValues() []float64 {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func flatValues() []float64 {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 50 + wobble[i%10]
	}
	return values
}

func scenarioProvider() *data.MemoryProvider {
	p := data.NewMemoryProvider()
	p.AddPoints("adc_mpv", points(spikeValues())...)
	p.AddPoints("cluster_size", points(stepValues())...)
	p.AddPoints("bco_peak_frac", points(rampValues())...)
	p.AddPoints("hits_asym", points(flatValues())...)
	return p
}

func analyze(t *testing.T, name string, values []float64) MetricResult {
	t.Helper()
	s, err := model.NewMetricSeries(name, points(values))
	require.NoError(t, err)
	return NewAnalyzer(DefaultConfig(), nil).AnalyzeMetric(MetricInput{Series: s}, nil)
}

func TestAnalyzeSpike(t *testing.T) {
	m := analyze(t, "adc_mpv", spikeValues())

	spike := m.Verdicts[9]
	assert.Equal(t, 10, spike.Run)
	assert.Equal(t, model.VerdictBad, spike.Verdict)
	assert.Equal(t, model.SeverityCritical, spike.Severity)
	assert.Equal(t, model.PatternSpike, spike.Pattern)
	assert.True(t, m.Robust[9].Strong)
	assert.True(t, m.Control[9].ShewhartOOC)
	assert.Equal(t, model.FlagWarn, m.QC[9].Status)

	for i := 0; i < 9; i++ {
		assert.Equal(t, model.VerdictGood, m.Verdicts[i].Verdict, "run %d", i+1)
	}

	// The CUSUM does not reset, so every later run stays out of control
	for i := 10; i < 20; i++ {
		v := m.Verdicts[i]
		assert.Equal(t, model.VerdictSuspect, v.Verdict, "run %d", v.Run)
		assert.Equal(t, model.PatternStatisticalFluctuation, v.Pattern, "run %d", v.Run)
		assert.False(t, m.Robust[i].Flagged(), "run %d", v.Run)
		assert.Equal(t, model.FlagWarn, m.Control[i].Flag, "run %d", v.Run)
	}

	assert.Len(t, m.Flagged(), 11)
	assert.False(t, m.Trend.HasTrend())
}

func TestAnalyzeStep(t *testing.T) {
	m := analyze(t, "cluster_size", stepValues())

	for _, v := range m.Verdicts {
		assert.Equal(t, model.VerdictGood, v.Verdict, "run %d", v.Run)
	}
	assert.Empty(t, m.Flagged())

	cp, ok := m.Trend.StrongChangepoint()
	require.True(t, ok)
	assert.Equal(t, 11, cp.Run)
	assert.Equal(t, 10, cp.Index)

	// Classified directly, the point at the shift is a step change
	c := classify.NewClassifier(classify.DefaultPatternConfig())
	assert.Equal(t, model.PatternStepChange, c.Classify(c.Gather(m.Robust, 10, m.Trend)))
}

func TestAnalyzeRamp(t *testing.T) {
	m := analyze(t, "bco_peak_frac", rampValues())

	assert.True(t, m.Trend.HasTrend())
	assert.InDelta(t, 1, m.Trend.Slope.Value, 1e-9)
	assert.Less(t, m.Trend.PValue, 1e-9)
	_, ok := m.Trend.StrongChangepoint()
	assert.False(t, ok)

	// Only the ends see a one-sided window
	flagged := m.Flagged()
	require.Len(t, flagged, 2)
	assert.Equal(t, 1, flagged[0].Run)
	assert.Equal(t, 20, flagged[1].Run)
	for _, v := range flagged {
		assert.Equal(t, model.VerdictSuspect, v.Verdict)
		assert.Equal(t, model.PatternIsolatedOutlier, v.Pattern)
	}
}

func TestAnalyzeFlat(t *testing.T) {
	m := analyze(t, "hits_asym", flatValues())
	assert.Empty(t, m.Flagged())
	assert.Equal(t, "Stable", m.Trend.Interpretation())
}

func measured(values []float64, statErr, entries float64) []model.SamplePoint {
	out := make([]model.SamplePoint, len(values))
	for i, v := range values {
		out[i] = model.SamplePoint{Run: i + 1, Value: v, StatErr: statErr, Entries: entries}
	}
	return out
}

func TestAnalyzeScenarios(t *testing.T) {
	nan := math.NaN()
	levels := make([]float64, 20)
	for i := range levels {
		levels[i] = 5
		if i >= 10 {
			levels[i] = 8
		}
	}

	tests := []struct {
		name   string
		points []model.SamplePoint
		check  func(t *testing.T, m MetricResult)
	}{
		{
			name:   "single spike in a short series",
			points: measured([]float64{10, 10, 10, 100, 10, 10, 10}, 1, 100),
			check: func(t *testing.T, m MetricResult) {
				assert.True(t, m.Robust[3].Strong)
				assert.Greater(t, m.Robust[3].Z, 1e6)

				// The spike dominates a two-mean split, but the medians do not move
				cp := m.Trend.Changepoint
				require.NotNil(t, cp)
				assert.Equal(t, 4, cp.Run)
				assert.Greater(t, cp.DeltaBIC, 800.0)
				assert.True(t, cp.BeatsTrend)
				assert.False(t, cp.RobustShift)
				assert.False(t, cp.Strong)

				v := m.Verdicts[3]
				assert.Equal(t, model.VerdictBad, v.Verdict)
				assert.Equal(t, model.SeverityCritical, v.Severity)
				assert.Equal(t, model.PatternSpike, v.Pattern)
			},
		},
		{
			name:   "precise ramp",
			points: measured(rampValues(), 0.1, 100),
			check: func(t *testing.T, m MetricResult) {
				assert.True(t, m.Trend.HasTrend())
				assert.InDelta(t, 1, m.Trend.Slope.Value, 1e-9)
				assert.Less(t, m.Trend.PValue, 1e-9)
				_, ok := m.Trend.StrongChangepoint()
				assert.False(t, ok)
				assert.Equal(t, "Significant trend detected", m.Trend.Interpretation())
			},
		},
		{
			name:   "clean level shift",
			points: measured(levels, 0.1, 100),
			check: func(t *testing.T, m MetricResult) {
				cp, ok := m.Trend.StrongChangepoint()
				require.True(t, ok)
				assert.Equal(t, 10, cp.Index)
				assert.Equal(t, 11, cp.Run)
				assert.Greater(t, cp.DeltaBIC, 10.0)
				assert.True(t, cp.RobustShift)

				c := classify.NewClassifier(classify.DefaultPatternConfig())
				for i := 8; i <= 12; i++ {
					assert.Equal(t, model.PatternStepChange, c.Classify(c.Gather(m.Robust, i, m.Trend)), "index %d", i)
				}
			},
		},
		{
			name:   "nothing measured",
			points: measured([]float64{nan, nan, nan, nan, nan, nan, nan, nan, nan, nan}, nan, 0),
			check: func(t *testing.T, m MetricResult) {
				for _, r := range m.Robust {
					assert.False(t, r.Valid(), "run %d", r.Run)
					assert.False(t, r.Flagged(), "run %d", r.Run)
					assert.True(t, math.IsNaN(r.Median), "run %d", r.Run)
				}
				assert.False(t, m.Trend.Slope.Valid)
				assert.Nil(t, m.Trend.Changepoint)
				assert.Equal(t, 0, m.Trend.N)

				for _, v := range m.Verdicts {
					assert.Equal(t, model.VerdictGood, v.Verdict, "run %d", v.Run)
					assert.True(t, v.NoData, "run %d", v.Run)
				}
				runs := verdict.Rollup(m.Verdicts)
				require.Len(t, runs, 10)
				for _, rv := range runs {
					assert.Equal(t, model.VerdictGood, rv.Verdict, "run %d", rv.Run)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := model.NewMetricSeries("adc_mpv", tt.points)
			require.NoError(t, err)
			tt.check(t, NewAnalyzer(DefaultConfig(), nil).AnalyzeMetric(MetricInput{Series: s}, nil))
		})
	}
}

func TestRecords(t *testing.T) {
	m := analyze(t, "adc_mpv", spikeValues())
	records := m.Records()
	require.Len(t, records, 20)

	r := records[9]
	assert.Equal(t, "adc_mpv", r.Metric)
	assert.Equal(t, 10, r.Run)
	assert.Equal(t, 130.0, r.Value)
	assert.True(t, r.Strong)
	assert.True(t, r.ShewhartOOC)
	assert.Equal(t, model.FlagWarn, r.ControlFlag)
	assert.Equal(t, model.FlagWarn, r.QCStatus)
	assert.Equal(t, "robust_z", r.QCReason)
	assert.Equal(t, m.EWMA[9], r.EWMA)
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()
	runner := NewRunner(DefaultConfig(), classify.DefaultRules(), WithLogger(zap.NewNop()), WithWorkers(2))

	names := []string{"adc_mpv", "cluster_size", "bco_peak_frac", "hits_asym", "no_data"}
	inputs, err := runner.LoadInputs(ctx, scenarioProvider(), names, map[string]model.Threshold{
		"cluster_size": {Metric: "cluster_size", Lo: 0, Hi: 100},
	})
	require.NoError(t, err)
	require.Len(t, inputs, 4)
	assert.Nil(t, inputs[0].Threshold)
	require.NotNil(t, inputs[1].Threshold)
	assert.Equal(t, 100.0, inputs[1].Threshold.Hi)

	res, err := runner.Run(ctx, inputs, map[int]model.RunContext{10: {Run: 10, Dead: 1, Total: 56}})
	require.NoError(t, err)

	assert.NotEmpty(t, res.PassID)
	assert.False(t, res.StartedAt.IsZero())
	require.Len(t, res.Metrics, 4)
	assert.Equal(t, "adc_mpv", res.Metrics[0].Metric)
	assert.Equal(t, "hits_asym", res.Metrics[3].Metric)
	assert.Len(t, res.Verdicts(), 80)

	require.Len(t, res.Runs, 20)
	byRun := make(map[int]model.RunVerdict)
	for _, rv := range res.Runs {
		byRun[rv.Run] = rv
		assert.Equal(t, 4, rv.Total())
	}

	assert.Equal(t, model.VerdictSuspect, byRun[1].Verdict)
	assert.Equal(t, "bco_peak_frac", byRun[1].WorstMetric)
	for run := 2; run <= 9; run++ {
		assert.Equal(t, model.VerdictGood, byRun[run].Verdict, "run %d", run)
		assert.Empty(t, byRun[run].WorstMetric)
	}
	assert.Equal(t, model.VerdictBad, byRun[10].Verdict)
	assert.Equal(t, "adc_mpv", byRun[10].WorstMetric)
	assert.Equal(t, 1, byRun[10].NBad)
	assert.Equal(t, model.VerdictSuspect, byRun[20].Verdict)
	assert.Equal(t, "adc_mpv", byRun[20].WorstMetric)
	assert.Equal(t, 2, byRun[20].NSuspect)

	tally := res.Tally()
	assert.Equal(t, 8, tally.Good)
	assert.Equal(t, 11, tally.Suspect)
	assert.Equal(t, 1, tally.Bad)

	require.Len(t, res.Fingerprints, 20)
	fp := res.Fingerprints[9]
	assert.Equal(t, 10, fp.Run)
	assert.Equal(t, model.VerdictBad, fp.Verdict)
	assert.Equal(t, 5, fp.Embedding.Dim())
	assert.Equal(t, float32(1), fp.Embedding[0])
	assert.Equal(t, float32(0.1), fp.Embedding[4])
	assert.Equal(t, model.LayoutID([]string{"adc_mpv", "cluster_size", "bco_peak_frac", "hits_asym"}), fp.Layout)
}

func TestRunnerNoMetrics(t *testing.T) {
	runner := NewRunner(DefaultConfig(), nil)
	_, err := runner.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoMetrics)
}

type failingProvider struct{}

func (failingProvider) FetchSeries(context.Context, string) (*model.MetricSeries, error) {
	return nil, errors.New("disk on fire")
}

func TestLoadInputsFails(t *testing.T) {
	runner := NewRunner(DefaultConfig(), nil)
	_, err := runner.LoadInputs(context.Background(), failingProvider{}, []string{"adc_mpv"}, nil)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestLoadInputsSkipsRepeatedRuns(t *testing.T) {
	provider := data.NewMemoryProvider()
	provider.AddPoints("hits_asym", points(flatValues())...)
	provider.AddPoints("adc_mpv",
		model.SamplePoint{Run: 1, Value: 10, StatErr: 0.5, Entries: 100},
		model.SamplePoint{Run: 1, Value: 11, StatErr: 0.5, Entries: 100},
		model.SamplePoint{Run: 2, Value: 10, StatErr: 0.5, Entries: 100},
	)

	runner := NewRunner(DefaultConfig(), nil)
	inputs, err := runner.LoadInputs(context.Background(), provider, []string{"adc_mpv", "hits_asym", "no_data"}, nil)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "hits_asym", inputs[0].Series.Name())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(DefaultConfig(), nil)
	s, err := model.NewMetricSeries("adc_mpv", points(flatValues()))
	require.NoError(t, err)

	_, err = runner.Run(ctx, []MetricInput{{Series: s}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
