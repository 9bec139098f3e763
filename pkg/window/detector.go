package window

import (
	"math"

	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/model"
)

// ZScale turns a MAD-normalised deviation into a Gaussian-equivalent z
const ZScale = 0.6745

// ThresholdConvention is a named weak/strong pair for |z_local|
type ThresholdConvention struct {
	Name   string  `mapstructure:"name"`
	Weak   float64 `mapstructure:"weak"`
	Strong float64 `mapstructure:"strong"`
}

// Two conventions are in circulation and disagree. LocalZThresholds matches
// the windowed detector as run in production; PipelineDocThresholds is the
// pair quoted in the pipeline documentation. Which one is authoritative is
// still open, so the choice is a configuration value.
var (
	LocalZThresholds      = ThresholdConvention{Name: "local_z", Weak: 2, Strong: 3}
	PipelineDocThresholds = ThresholdConvention{Name: "pipeline_doc", Weak: 3, Strong: 5}
)

// ConventionByName looks up a built-in threshold convention
func ConventionByName(name string) (ThresholdConvention, bool) {
	switch name {
	case LocalZThresholds.Name:
		return LocalZThresholds, true
	case PipelineDocThresholds.Name:
		return PipelineDocThresholds, true
	}
	return ThresholdConvention{}, false
}

// Config holds configuration for the robust outlier detector
type Config struct {
	HalfWidth    int                 // neighbors on each side of the point
	MinNeighbors int                 // fewer qualifying neighbors give no evidence
	Epsilon      float64             // added to MAD before dividing
	Thresholds   ThresholdConvention // weak/strong cut on |z|
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		HalfWidth:    5,
		MinNeighbors: 3,
		Epsilon:      1e-6,
		Thresholds:   LocalZThresholds,
	}
}

// Detector computes local median/MAD z-scores over a sliding window
type Detector struct {
	config Config
}

// NewDetector creates a new detector, filling unset fields from DefaultConfig
func NewDetector(config Config) *Detector {
	def := DefaultConfig()
	if config.HalfWidth <= 0 {
		config.HalfWidth = def.HalfWidth
	}
	if config.MinNeighbors <= 0 {
		config.MinNeighbors = def.MinNeighbors
	}
	if config.Epsilon <= 0 {
		config.Epsilon = def.Epsilon
	}
	if config.Thresholds.Strong <= 0 {
		config.Thresholds = def.Thresholds
	}
	return &Detector{config: config}
}

// Config returns the effective configuration
func (d *Detector) Config() Config {
	return d.config
}

// Detect returns one RobustStats per point of s, in series order
func (d *Detector) Detect(s *model.MetricSeries) []model.RobustStats {
	out := make([]model.RobustStats, s.Len())
	for i := range out {
		out[i] = d.At(s, i)
	}
	return out
}

// At computes the robust stats of the point at position i
func (d *Detector) At(s *model.MetricSeries, i int) model.RobustStats {
	center := s.At(i)
	result := model.RobustStats{
		Run:    center.Run,
		Median: math.NaN(),
		MAD:    math.NaN(),
		Z:      math.NaN(),
	}

	lo := max(0, i-d.config.HalfWidth)
	hi := min(s.Len()-1, i+d.config.HalfWidth)

	neighbors := make([]float64, 0, hi-lo)
	for j := lo; j <= hi; j++ {
		if j == i {
			continue
		}
		if p := s.At(j); p.HasSupport() {
			neighbors = append(neighbors, p.Value)
		}
	}
	result.Support = len(neighbors)
	if len(neighbors) < d.config.MinNeighbors {
		return result
	}

	result.Median, result.MAD = feature.MedianMAD(neighbors)

	// The point itself may be missing while its neighbors are fine
	if !center.HasSupport() {
		return result
	}

	dev := center.Value - result.Median
	if result.MAD == 0 && dev == 0 {
		// Zero spread and zero deviation: no outlier signal either way
		return result
	}

	result.Z = ZScale * dev / (result.MAD + d.config.Epsilon)
	result.Strong, result.Weak = d.Classify(result.Z)
	return result
}

// Classify applies the configured threshold pair to z
func (d *Detector) Classify(z float64) (strong, weak bool) {
	if math.IsNaN(z) {
		return false, false
	}
	az := math.Abs(z)
	strong = az >= d.config.Thresholds.Strong
	weak = az >= d.config.Thresholds.Weak && !strong
	return strong, weak
}

// FlaggedNeighbors counts points within radius positions of i whose |z| exceeds cut
func FlaggedNeighbors(robust []model.RobustStats, i, radius int, cut float64) int {
	count := 0
	for j := max(0, i-radius); j <= min(len(robust)-1, i+radius); j++ {
		if j == i {
			continue
		}
		if z := robust[j].Z; !math.IsNaN(z) && math.Abs(z) > cut {
			count++
		}
	}
	return count
}
