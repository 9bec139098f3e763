package classify

import (
	"math"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/window"
)

// PatternConfig holds the cut values of the pattern decision list
type PatternConfig struct {
	NeighborRadius    int     // positions searched on each side for flagged neighbors
	NeighborZ         float64 // |z| above which a neighbor counts as flagged
	ChangepointRadius int     // positions within which a strong changepoint claims the point
	SpikeZ            float64 // |z| above which an unsupported excursion is a spike
	OutlierZ          float64 // |z| above which a point is an isolated outlier
}

// DefaultPatternConfig returns default configuration
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		NeighborRadius:    2,
		NeighborZ:         2.0,
		ChangepointRadius: 2,
		SpikeZ:            4.0,
		OutlierZ:          2.0,
	}
}

// Evidence is the input to pattern classification for one point
type Evidence struct {
	Index            int
	Z                float64
	FlaggedNeighbors int
	Trend            model.TrendStats
}

// Classifier assigns an anomaly pattern to a flagged point
type Classifier struct {
	config PatternConfig
}

// NewClassifier creates a new pattern classifier. Unset fields take their defaults.
func NewClassifier(config PatternConfig) *Classifier {
	def := DefaultPatternConfig()
	if config.NeighborRadius <= 0 {
		config.NeighborRadius = def.NeighborRadius
	}
	if config.NeighborZ <= 0 {
		config.NeighborZ = def.NeighborZ
	}
	if config.ChangepointRadius <= 0 {
		config.ChangepointRadius = def.ChangepointRadius
	}
	if config.SpikeZ <= 0 {
		config.SpikeZ = def.SpikeZ
	}
	if config.OutlierZ <= 0 {
		config.OutlierZ = def.OutlierZ
	}
	return &Classifier{config: config}
}

// Config returns the effective configuration
func (c *Classifier) Config() PatternConfig {
	return c.config
}

// Gather builds the evidence for position i from a metric's robust stats and trend
func (c *Classifier) Gather(robust []model.RobustStats, i int, trend model.TrendStats) Evidence {
	return Evidence{
		Index:            i,
		Z:                robust[i].Z,
		FlaggedNeighbors: window.FlaggedNeighbors(robust, i, c.config.NeighborRadius, c.config.NeighborZ),
		Trend:            trend,
	}
}

// Classify walks the decision list; the first match wins
func (c *Classifier) Classify(e Evidence) model.Pattern {
	if cp, ok := e.Trend.StrongChangepoint(); ok && abs(cp.Index-e.Index) <= c.config.ChangepointRadius {
		return model.PatternStepChange
	}

	// NaN compares false, so a point without a local z skips the z-based branches
	az := math.Abs(e.Z)
	if az > c.config.SpikeZ && e.FlaggedNeighbors == 0 {
		return model.PatternSpike
	}
	if e.Trend.HasTrend() && e.FlaggedNeighbors >= 2 {
		return model.PatternGradualDrift
	}
	if e.FlaggedNeighbors >= 2 {
		return model.PatternSustainedShift
	}
	if az > c.config.OutlierZ {
		return model.PatternIsolatedOutlier
	}
	return model.PatternStatisticalFluctuation
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
