package feature

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tunogya/runqa/pkg/model"
)

// TrendConfig holds configuration for trend and changepoint analysis
type TrendConfig struct {
	MinChangepointPoints int     // fewer finite points yield no changepoint
	MinSegment           int     // lower bound on points per side of a split
	SegmentDivisor       int     // each side also needs at least N/SegmentDivisor points
	StrongDeltaBIC       float64 // delta BIC needed for strong evidence
	RobustShiftRatio     float64 // segment median shift must reach this share of the mean shift
}

// DefaultTrendConfig returns default configuration
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		MinChangepointPoints: 6,
		MinSegment:           3,
		SegmentDivisor:       10,
		StrongDeltaBIC:       10,
		RobustShiftRatio:     0.5,
	}
}

// Fit is a weighted straight-line fit of value against run
type Fit struct {
	Slope     float64
	SlopeErr  float64
	Intercept float64
	PValue    float64
	RSS       float64 // weighted residual sum of squares
	N         int
	Valid     bool
}

// WeightedLinearFit fits ys = a + b*xs with weights ws by least squares.
// A degenerate design returns an invalid fit with p = 1.
func WeightedLinearFit(xs, ys, ws []float64) Fit {
	n := len(xs)
	var sw, sx, sy, sxx, sxy float64
	for i := 0; i < n; i++ {
		w := ws[i]
		sw += w
		sx += w * xs[i]
		sy += w * ys[i]
		sxx += w * xs[i] * xs[i]
		sxy += w * xs[i] * ys[i]
	}

	d := sw*sxx - sx*sx
	if n == 0 || d <= 0 {
		return Fit{
			Slope:    math.NaN(),
			SlopeErr: math.NaN(),
			PValue:   1,
			RSS:      math.NaN(),
			N:        n,
		}
	}

	b := (sw*sxy - sx*sy) / d
	a := (sy - b*sx) / sw

	rss := 0.0
	for i := 0; i < n; i++ {
		res := ys[i] - (a + b*xs[i])
		rss += ws[i] * res * res
	}

	dof := math.Max(1, float64(n-2))
	varB := (rss / dof) * sw / d
	eb := math.Sqrt(math.Max(0, varB))

	return Fit{
		Slope:     b,
		SlopeErr:  eb,
		Intercept: a,
		PValue:    slopePValue(b, eb, n),
		RSS:       rss,
		N:         n,
		Valid:     true,
	}
}

// slopePValue is the two-sided normal tail probability of b/eb.
// An exact fit through more than two points is maximally significant.
func slopePValue(b, eb float64, n int) float64 {
	if n <= 2 || b == 0 {
		return 1
	}
	if eb == 0 {
		return 0
	}
	return 2 * distuv.UnitNormal.Survival(math.Abs(b/eb))
}

// Analyzer computes trend and changepoint evidence for a series
type Analyzer struct {
	config TrendConfig
}

// NewAnalyzer creates a new trend analyzer
func NewAnalyzer(config TrendConfig) *Analyzer {
	def := DefaultTrendConfig()
	if config.MinChangepointPoints <= 0 {
		config.MinChangepointPoints = def.MinChangepointPoints
	}
	if config.MinSegment <= 0 {
		config.MinSegment = def.MinSegment
	}
	if config.SegmentDivisor <= 0 {
		config.SegmentDivisor = def.SegmentDivisor
	}
	if config.StrongDeltaBIC == 0 {
		config.StrongDeltaBIC = def.StrongDeltaBIC
	}
	return &Analyzer{config: config}
}

// Analyze fits the finite points of s and searches for a single level shift.
// It never fails: insufficient data comes back as "no evidence".
func (a *Analyzer) Analyze(s *model.MetricSeries) model.TrendStats {
	pts := s.FinitePoints()
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	ws := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = float64(p.Run)
		ys[i] = p.Value
		ws[i] = p.InverseVarianceWeight()
	}

	fit := WeightedLinearFit(xs, ys, ws)
	median, sigma := RobustCenter(ys)

	result := model.TrendStats{
		Metric:      s.Name(),
		N:           len(pts),
		Median:      median,
		RobustSigma: sigma,
		Slope:       model.NoEstimate,
		Intercept:   math.NaN(),
		PValue:      fit.PValue,
	}
	if fit.Valid {
		result.Slope = model.Estimate{Value: fit.Slope, Err: fit.SlopeErr, Valid: true}
		result.Intercept = fit.Intercept
	}

	result.Changepoint = a.changepoint(s, pts, ys, ws, fit)
	return result
}

// changepoint compares a one-mean model against the best two-mean split by BIC
func (a *Analyzer) changepoint(s *model.MetricSeries, pts []model.SamplePoint, ys, ws []float64, fit Fit) *model.Changepoint {
	n := len(pts)
	if n < a.config.MinChangepointPoints {
		return nil
	}

	lnN := math.Log(float64(n))
	baseline := weightedSSE(ys, ws, 0, n) + lnN

	minSide := a.config.MinSegment
	if n/a.config.SegmentDivisor > minSide {
		minSide = n / a.config.SegmentDivisor
	}

	best := math.Inf(1)
	bestK := -1
	for k := minSide; k <= n-minSide; k++ {
		bic := weightedSSE(ys, ws, 0, k) + weightedSSE(ys, ws, k, n) + 2*lnN
		if bic < best {
			best = bic
			bestK = k
		}
	}
	if bestK <= 0 || bestK >= n {
		return nil
	}

	cp := &model.Changepoint{
		Run:      pts[bestK].Run,
		DeltaBIC: baseline - best,
	}
	cp.Index, _ = s.IndexOf(cp.Run)

	// A straight line with the same parameter count explains a ramp better
	// than any split of it.
	linear := math.Inf(1)
	if fit.Valid {
		linear = fit.RSS + 2*lnN
	}
	cp.BeatsTrend = best < linear

	leftMean := weightedMeanRange(ys, ws, 0, bestK)
	rightMean := weightedMeanRange(ys, ws, bestK, n)
	leftMedian := Median(ys[:bestK])
	rightMedian := Median(ys[bestK:])
	cp.RobustShift = math.Abs(rightMedian-leftMedian) >= a.config.RobustShiftRatio*math.Abs(rightMean-leftMean)

	cp.Strong = cp.DeltaBIC >= a.config.StrongDeltaBIC && cp.BeatsTrend && cp.RobustShift
	return cp
}

// weightedMeanRange returns the weighted mean of ys[lo:hi]
func weightedMeanRange(ys, ws []float64, lo, hi int) float64 {
	var sw, swy float64
	for i := lo; i < hi; i++ {
		sw += ws[i]
		swy += ws[i] * ys[i]
	}
	if sw <= 0 {
		return math.NaN()
	}
	return swy / sw
}

// weightedSSE returns the weighted squared deviation of ys[lo:hi] from its weighted mean
func weightedSSE(ys, ws []float64, lo, hi int) float64 {
	mu := weightedMeanRange(ys, ws, lo, hi)
	if math.IsNaN(mu) {
		return 0
	}
	sse := 0.0
	for i := lo; i < hi; i++ {
		d := ys[i] - mu
		sse += ws[i] * d * d
	}
	return sse
}
