package nats

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tunogya/runqa/pkg/model"
)

// Subject constants
const (
	SubjectMetricWrite = "runqa.metrics.write"
	SubjectPassWrite   = "runqa.passes.write"
)

// Subjects returns every subject the stream must carry
func Subjects() []string {
	return []string{SubjectMetricWrite, SubjectPassWrite}
}

// JSON cannot carry NaN, so optional numbers travel as pointers and nil means NaN.

// PointMsg is one point record on the wire
type PointMsg struct {
	Run         int        `json:"run"`
	Value       *float64   `json:"value"`
	StatErr     *float64   `json:"stat_err"`
	Entries     *float64   `json:"entries"`
	Median      *float64   `json:"neighbors_median"`
	MAD         *float64   `json:"neighbors_mad"`
	Z           *float64   `json:"z_local"`
	Weak        bool       `json:"is_outlier_weak"`
	Strong      bool       `json:"is_outlier_strong"`
	EWMA        *float64   `json:"ewma"`
	ShewhartOOC bool       `json:"shewhart_ooc"`
	CusumPos    *float64   `json:"cusum_pos"`
	CusumNeg    *float64   `json:"cusum_neg"`
	ControlFlag model.Flag `json:"control_flag"`
	ZGlobal     *float64   `json:"z_global"`
	QCStatus    model.Flag `json:"qc_status"`
	QCReason    string     `json:"qc_reason,omitempty"`
}

// TrendMsg is one trend summary on the wire
type TrendMsg struct {
	N           int                `json:"n"`
	Median      *float64           `json:"median"`
	RobustSigma *float64           `json:"robust_sigma"`
	Slope       *float64           `json:"slope"`
	SlopeErr    *float64           `json:"slope_err"`
	SlopeValid  bool               `json:"slope_valid"`
	Intercept   *float64           `json:"intercept"`
	PValue      *float64           `json:"p_value"`
	Changepoint *model.Changepoint `json:"changepoint,omitempty"` // DeltaBIC is always finite
}

// VerdictMsg is one (run, metric) verdict on the wire
type VerdictMsg struct {
	Run      int            `json:"run"`
	Verdict  model.Verdict  `json:"verdict"`
	Severity model.Severity `json:"severity"`
	Pattern  model.Pattern  `json:"pattern"`
	Causes   []string       `json:"causes"`
	Action   string         `json:"action"`
	Z        *float64       `json:"z_local"`
	Value    *float64       `json:"value"`
	NoData   bool           `json:"no_data"`
}

// MetricBatchMsg carries everything derived from one metric in one pass
type MetricBatchMsg struct {
	PassID   string       `json:"pass_id"`
	Metric   string       `json:"metric"`
	Points   []PointMsg   `json:"points"`
	Trend    TrendMsg     `json:"trend"`
	Verdicts []VerdictMsg `json:"verdicts"`
}

// PassMsg closes a pass with its per-run rollup
type PassMsg struct {
	PassID    string             `json:"pass_id"`
	StartedAt time.Time          `json:"started_at"`
	Metrics   int                `json:"metrics"`
	Runs      []model.RunVerdict `json:"runs"`
}

// NewMetricBatchMsg encodes the results of one metric for the wire
func NewMetricBatchMsg(passID, metric string, points []model.PointRecord, trend model.TrendStats, verdicts []model.RunMetricVerdict) *MetricBatchMsg {
	msg := &MetricBatchMsg{
		PassID:   passID,
		Metric:   metric,
		Points:   make([]PointMsg, len(points)),
		Verdicts: make([]VerdictMsg, len(verdicts)),
		Trend: TrendMsg{
			N:           trend.N,
			Median:      ptr(trend.Median),
			RobustSigma: ptr(trend.RobustSigma),
			Slope:       ptr(trend.Slope.Value),
			SlopeErr:    ptr(trend.Slope.Err),
			SlopeValid:  trend.Slope.Valid,
			Intercept:   ptr(trend.Intercept),
			PValue:      ptr(trend.PValue),
			Changepoint: trend.Changepoint,
		},
	}
	for i, p := range points {
		msg.Points[i] = PointMsg{
			Run:         p.Run,
			Value:       ptr(p.Value),
			StatErr:     ptr(p.StatErr),
			Entries:     ptr(p.Entries),
			Median:      ptr(p.Median),
			MAD:         ptr(p.MAD),
			Z:           ptr(p.Z),
			Weak:        p.Weak,
			Strong:      p.Strong,
			EWMA:        ptr(p.EWMA),
			ShewhartOOC: p.ShewhartOOC,
			CusumPos:    ptr(p.CusumPos),
			CusumNeg:    ptr(p.CusumNeg),
			ControlFlag: p.ControlFlag,
			ZGlobal:     ptr(p.ZGlobal),
			QCStatus:    p.QCStatus,
			QCReason:    p.QCReason,
		}
	}
	for i, v := range verdicts {
		msg.Verdicts[i] = VerdictMsg{
			Run:      v.Run,
			Verdict:  v.Verdict,
			Severity: v.Severity,
			Pattern:  v.Pattern,
			Causes:   v.Causes,
			Action:   v.Action,
			Z:        ptr(v.Z),
			Value:    ptr(v.Value),
			NoData:   v.NoData,
		}
	}
	return msg
}

// PointRecords decodes the points of the batch
func (m *MetricBatchMsg) PointRecords() []model.PointRecord {
	out := make([]model.PointRecord, len(m.Points))
	for i, p := range m.Points {
		out[i] = model.PointRecord{
			Metric:      m.Metric,
			Run:         p.Run,
			Value:       val(p.Value),
			StatErr:     val(p.StatErr),
			Entries:     val(p.Entries),
			Median:      val(p.Median),
			MAD:         val(p.MAD),
			Z:           val(p.Z),
			Weak:        p.Weak,
			Strong:      p.Strong,
			EWMA:        val(p.EWMA),
			ShewhartOOC: p.ShewhartOOC,
			CusumPos:    val(p.CusumPos),
			CusumNeg:    val(p.CusumNeg),
			ControlFlag: p.ControlFlag,
			ZGlobal:     val(p.ZGlobal),
			QCStatus:    p.QCStatus,
			QCReason:    p.QCReason,
		}
	}
	return out
}

// TrendStats decodes the trend summary of the batch
func (m *MetricBatchMsg) TrendStats() model.TrendStats {
	t := m.Trend
	return model.TrendStats{
		Metric:      m.Metric,
		N:           t.N,
		Median:      val(t.Median),
		RobustSigma: val(t.RobustSigma),
		Slope:       model.Estimate{Value: val(t.Slope), Err: val(t.SlopeErr), Valid: t.SlopeValid},
		Intercept:   val(t.Intercept),
		PValue:      val(t.PValue),
		Changepoint: t.Changepoint,
	}
}

// RunMetricVerdicts decodes the verdicts of the batch
func (m *MetricBatchMsg) RunMetricVerdicts() []model.RunMetricVerdict {
	out := make([]model.RunMetricVerdict, len(m.Verdicts))
	for i, v := range m.Verdicts {
		out[i] = model.RunMetricVerdict{
			Run:      v.Run,
			Metric:   m.Metric,
			Verdict:  v.Verdict,
			Severity: v.Severity,
			Pattern:  v.Pattern,
			Causes:   v.Causes,
			Action:   v.Action,
			Z:        val(v.Z),
			Value:    val(v.Value),
			NoData:   v.NoData,
		}
	}
	return out
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func val(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Encode serializes a message to JSON bytes
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// DecodeMetricBatch deserializes a MetricBatchMsg from JSON bytes
func DecodeMetricBatch(data []byte) (*MetricBatchMsg, error) {
	var msg MetricBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode metric batch: %w", err)
	}
	return &msg, nil
}

// DecodePass deserializes a PassMsg from JSON bytes
func DecodePass(data []byte) (*PassMsg, error) {
	var msg PassMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode pass: %w", err)
	}
	return &msg, nil
}
