package control

import (
	"math"

	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/model"
)

// Config holds configuration for the control-chart evaluator
type Config struct {
	ZThreshold    float64 // Shewhart limit in robust sigmas
	K             float64 // CUSUM drift allowance
	H             float64 // CUSUM decision interval
	MinPoints     int     // fewer finite points leave every point PASS
	SigmaFallback float64 // used when the robust sigma collapses
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		ZThreshold:    3.0,
		K:             0.5,
		H:             5.0,
		MinPoints:     3,
		SigmaFallback: 1.0,
	}
}

// Evaluator runs a Shewhart chart and a two-sided CUSUM over a series
type Evaluator struct {
	config Config
}

// NewEvaluator creates a new control-chart evaluator
func NewEvaluator(config Config) *Evaluator {
	def := DefaultConfig()
	if config.ZThreshold <= 0 {
		config.ZThreshold = def.ZThreshold
	}
	if config.H <= 0 {
		config.H = def.H
	}
	if config.MinPoints <= 0 {
		config.MinPoints = def.MinPoints
	}
	if config.SigmaFallback <= 0 {
		config.SigmaFallback = def.SigmaFallback
	}
	return &Evaluator{config: config}
}

// Evaluate returns one ControlFlag per point of s, in series order.
// Missing points are PASS and do not move the CUSUM accumulators.
func (e *Evaluator) Evaluate(s *model.MetricSeries) []model.ControlFlag {
	flags := make([]model.ControlFlag, s.Len())

	finite := s.FiniteValues()
	if len(finite) < e.config.MinPoints {
		for i := range flags {
			p := s.At(i)
			flags[i] = model.ControlFlag{
				Run:     p.Run,
				Value:   p.Value,
				ZRobust: math.NaN(),
				Flag:    model.FlagPass,
			}
		}
		return flags
	}

	median, sigma := feature.RobustCenter(finite)
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		sigma = e.config.SigmaFallback
	}

	var cp, cn float64
	for i := range flags {
		p := s.At(i)
		flag := model.ControlFlag{
			Run:      p.Run,
			Value:    p.Value,
			ZRobust:  math.NaN(),
			CusumPos: cp,
			CusumNeg: cn,
			Flag:     model.FlagPass,
		}
		if !p.IsFinite() {
			flags[i] = flag
			continue
		}

		dev := (p.Value - median) / sigma
		cp = math.Max(0, cp+dev-e.config.K)
		cn = math.Max(0, cn-dev-e.config.K)

		flag.ZRobust = dev
		flag.ShewhartOOC = math.Abs(dev) > e.config.ZThreshold
		flag.CusumPos = cp
		flag.CusumNeg = cn
		if flag.ShewhartOOC || cp > e.config.H || cn > e.config.H {
			flag.Flag = model.FlagWarn
		}
		flags[i] = flag
	}

	return flags
}
