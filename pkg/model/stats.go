package model

import (
	"fmt"
	"math"
)

// RobustStats is the windowed median/MAD evidence for one point
type RobustStats struct {
	Run     int     `json:"run"`
	Median  float64 `json:"median"` // NaN when fewer than 3 neighbors qualify
	MAD     float64 `json:"mad"`
	Z       float64 `json:"z_local"` // NaN when undefined
	Weak    bool    `json:"weak"`
	Strong  bool    `json:"strong"`
	Support int     `json:"support"` // number of qualifying neighbors
}

// Valid returns true if a local z could be computed
func (r RobustStats) Valid() bool {
	return !math.IsNaN(r.Z)
}

// Flagged returns true if either outlier flag is set
func (r RobustStats) Flagged() bool {
	return r.Weak || r.Strong
}

// Estimate is a value with uncertainty that may be absent
type Estimate struct {
	Value float64 `json:"value"`
	Err   float64 `json:"err"`
	Valid bool    `json:"valid"`
}

// NoEstimate is the explicit "no evidence" estimate
var NoEstimate = Estimate{Value: math.NaN(), Err: math.NaN()}

// Changepoint is the best single level shift found in a series
type Changepoint struct {
	Run         int     `json:"run"`   // first run of the right-hand segment
	Index       int     `json:"index"` // position of Run in the full series
	DeltaBIC    float64 `json:"delta_bic"`
	BeatsTrend  bool    `json:"beats_trend"`  // the two-mean split beats a straight line
	RobustShift bool    `json:"robust_shift"` // the segment medians move with the means
	Strong      bool    `json:"strong"`
}

// TrendStats summarises a whole series
type TrendStats struct {
	Metric      string       `json:"metric"`
	N           int          `json:"n"` // finite points used
	Median      float64      `json:"median"`
	RobustSigma float64      `json:"robust_sigma"`
	Slope       Estimate     `json:"slope"`
	Intercept   float64      `json:"intercept"`
	PValue      float64      `json:"p_value"`
	Changepoint *Changepoint `json:"changepoint,omitempty"`
}

// SignificanceLevel is the p-value below which a slope counts as a trend
const SignificanceLevel = 0.01

// HasTrend returns true if the slope is significant and non-zero
func (t TrendStats) HasTrend() bool {
	return t.Slope.Valid && t.Slope.Value != 0 && t.PValue < SignificanceLevel
}

// StrongChangepoint returns the changepoint if it is strong evidence of a level shift
func (t TrendStats) StrongChangepoint() (*Changepoint, bool) {
	if t.Changepoint == nil || !t.Changepoint.Strong {
		return nil, false
	}
	return t.Changepoint, true
}

// Interpretation returns a one-line reading of the trend summary
func (t TrendStats) Interpretation() string {
	if t.HasTrend() {
		return "Significant trend detected"
	}
	if cp, ok := t.StrongChangepoint(); ok {
		return fmt.Sprintf("Level shift at run %d", cp.Run)
	}
	return "Stable"
}

// Flag is a PASS/WARN/FAIL status
type Flag string

const (
	FlagPass Flag = "PASS"
	FlagWarn Flag = "WARN"
	FlagFail Flag = "FAIL"
)

// ControlFlag is the Shewhart/CUSUM state at one point
type ControlFlag struct {
	Run         int     `json:"run"`
	Value       float64 `json:"value"`
	ZRobust     float64 `json:"z_robust"`
	ShewhartOOC bool    `json:"shewhart_ooc"`
	CusumPos    float64 `json:"cusum_pos"`
	CusumNeg    float64 `json:"cusum_neg"`
	Flag        Flag    `json:"flag"`
}

// QCStatus is the threshold check result at one point
type QCStatus struct {
	Run     int     `json:"run"`
	Value   float64 `json:"value"`
	ZGlobal float64 `json:"z_global"`
	Status  Flag    `json:"status"`
	Reason  string  `json:"reason,omitempty"`
}

// Threshold holds hard bounds for a metric. Missing bounds are infinite.
type Threshold struct {
	Metric string  `json:"metric"`
	Lo     float64 `json:"lo"`
	Hi     float64 `json:"hi"`
}

// Unbounded returns a threshold with no limits
func Unbounded(metric string) Threshold {
	return Threshold{Metric: metric, Lo: math.Inf(-1), Hi: math.Inf(1)}
}

// Breached returns true if a finite value lies outside [Lo, Hi]
func (t Threshold) Breached(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return v < t.Lo || v > t.Hi
}
