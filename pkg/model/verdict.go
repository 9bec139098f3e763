package model

import "fmt"

// Verdict is the quality class of a run or of one metric in a run
type Verdict string

const (
	VerdictGood    Verdict = "GOOD"
	VerdictSuspect Verdict = "SUSPECT"
	VerdictBad     Verdict = "BAD"
)

// Severity ranks how urgently a verdict needs attention
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Pattern is the shape of an anomaly around a flagged point
type Pattern string

const (
	PatternSpike                  Pattern = "spike"
	PatternStepChange             Pattern = "step_change"
	PatternGradualDrift           Pattern = "gradual_drift"
	PatternSustainedShift         Pattern = "sustained_shift"
	PatternIsolatedOutlier        Pattern = "isolated_outlier"
	PatternStatisticalFluctuation Pattern = "statistical_fluctuation"
	PatternNormal                 Pattern = "normal"
)

// Severity maps a pattern to its default severity
func (p Pattern) Severity() Severity {
	switch p {
	case PatternSpike, PatternSustainedShift:
		return SeverityCritical
	case PatternStepChange, PatternGradualDrift:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// RunContext is auxiliary per-run detector health supplied from outside
type RunContext struct {
	Run   int `json:"run"`
	Dead  int `json:"dead"`
	Hot   int `json:"hot"`
	Total int `json:"total"`
}

// RunMetricVerdict is the decision for one (run, metric) pair
type RunMetricVerdict struct {
	Run      int      `json:"run"`
	Metric   string   `json:"metric"`
	Verdict  Verdict  `json:"verdict"`
	Severity Severity `json:"severity"`
	Pattern  Pattern  `json:"pattern"`
	Causes   []string `json:"causes"`
	Action   string   `json:"action"`
	Z        float64  `json:"z_local"`
	Value    float64  `json:"value"`
	NoData   bool     `json:"no_data"` // the value was missing, so nothing could be checked
}

// RunVerdict folds all metric verdicts of one run
type RunVerdict struct {
	Run         int     `json:"run"`
	Verdict     Verdict `json:"verdict"`
	NGood       int     `json:"n_good"`
	NSuspect    int     `json:"n_suspect"`
	NBad        int     `json:"n_bad"`
	WorstMetric string  `json:"worst_metric"`
}

// Total returns the number of constituent verdicts
func (r RunVerdict) Total() int {
	return r.NGood + r.NSuspect + r.NBad
}

// Summary returns a one-line count of the constituents
func (r RunVerdict) Summary() string {
	s := fmt.Sprintf("%d good, %d suspect, %d bad", r.NGood, r.NSuspect, r.NBad)
	if r.WorstMetric != "" {
		s += fmt.Sprintf(" (worst: %s)", r.WorstMetric)
	}
	return s
}
