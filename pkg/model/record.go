package model

// PointRecord flattens every per-point result of one metric into a row
type PointRecord struct {
	Metric      string  `json:"metric"`
	Run         int     `json:"run"`
	Value       float64 `json:"value"`
	StatErr     float64 `json:"stat_err"`
	Entries     float64 `json:"entries"`
	Median      float64 `json:"neighbors_median"`
	MAD         float64 `json:"neighbors_mad"`
	Z           float64 `json:"z_local"`
	Weak        bool    `json:"is_outlier_weak"`
	Strong      bool    `json:"is_outlier_strong"`
	EWMA        float64 `json:"ewma"`
	ShewhartOOC bool    `json:"shewhart_ooc"`
	CusumPos    float64 `json:"cusum_pos"`
	CusumNeg    float64 `json:"cusum_neg"`
	ControlFlag Flag    `json:"control_flag"`
	ZGlobal     float64 `json:"z_global"`
	QCStatus    Flag    `json:"qc_status"`
	QCReason    string  `json:"qc_reason"`
}

// NewPointRecord joins the per-point results that share one run
func NewPointRecord(metric string, p SamplePoint, r RobustStats, ewma float64, c ControlFlag, q QCStatus) PointRecord {
	return PointRecord{
		Metric:      metric,
		Run:         p.Run,
		Value:       p.Value,
		StatErr:     p.StatErr,
		Entries:     p.Entries,
		Median:      r.Median,
		MAD:         r.MAD,
		Z:           r.Z,
		Weak:        r.Weak,
		Strong:      r.Strong,
		EWMA:        ewma,
		ShewhartOOC: c.ShewhartOOC,
		CusumPos:    c.CusumPos,
		CusumNeg:    c.CusumNeg,
		ControlFlag: c.Flag,
		ZGlobal:     q.ZGlobal,
		QCStatus:    q.Status,
		QCReason:    q.Reason,
	}
}
