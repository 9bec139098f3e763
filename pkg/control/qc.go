package control

import (
	"math"

	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/model"
)

// QC status reasons
const (
	ReasonThreshold = "threshold"
	ReasonRobustZ   = "robust_z"
)

// QCConfig holds configuration for threshold QC
type QCConfig struct {
	TolZ float64 // global robust |z| above which a point is WARN; 0 disables
}

// DefaultQCConfig returns default configuration
func DefaultQCConfig() QCConfig {
	return QCConfig{TolZ: 3.5}
}

// QCStatus checks every point of s against hard bounds and a global robust z.
// A missing threshold means unbounded. Missing values are PASS.
func QCStatus(s *model.MetricSeries, threshold *model.Threshold, config QCConfig) []model.QCStatus {
	bounds := model.Unbounded(s.Name())
	if threshold != nil {
		bounds = *threshold
	}

	median, sigma := feature.RobustCenter(s.Values())

	out := make([]model.QCStatus, s.Len())
	for i := range out {
		p := s.At(i)
		st := model.QCStatus{
			Run:     p.Run,
			Value:   p.Value,
			ZGlobal: math.NaN(),
			Status:  model.FlagPass,
		}
		if !p.IsFinite() {
			out[i] = st
			continue
		}

		st.ZGlobal = 0
		if sigma > 0 {
			st.ZGlobal = (p.Value - median) / sigma
		}

		breached := bounds.Breached(p.Value)
		outlier := config.TolZ > 0 && math.Abs(st.ZGlobal) > config.TolZ

		switch {
		case breached && outlier:
			st.Status = model.FlagFail
			st.Reason = ReasonThreshold + "+" + ReasonRobustZ
		case breached:
			st.Status = model.FlagFail
			st.Reason = ReasonThreshold
		case outlier:
			st.Status = model.FlagWarn
			st.Reason = ReasonRobustZ
		}
		out[i] = st
	}

	return out
}
