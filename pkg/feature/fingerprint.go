package feature

import (
	"math"
	"sort"

	"github.com/tunogya/runqa/pkg/model"
)

// Column is the local z of one metric, keyed by run
type Column struct {
	Metric string
	Z      map[int]float64
}

// Fingerprinter turns per-metric local z-scores into per-run vectors
type Fingerprinter struct {
	ClipZ    float64 // |z| is clipped here, then scaled to [-1, 1]
	Baseline float32 // constant last component so quiet runs stay comparable
}

// NewFingerprinter creates a new fingerprinter
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{
		ClipZ:    5.0,
		Baseline: 0.1,
	}
}

// Dim returns the fingerprint dimension for n metrics
func (f *Fingerprinter) Dim(n int) int {
	return n + 1
}

// Build returns one fingerprint per run that appears in any column, ordered by run.
// Runs missing from a column or with an undefined z contribute 0 for that metric.
func (f *Fingerprinter) Build(columns []Column, verdicts map[int]model.Verdict) []model.RunFingerprint {
	metrics := make([]string, len(columns))
	runSet := make(map[int]struct{})
	for i, c := range columns {
		metrics[i] = c.Metric
		for run := range c.Z {
			runSet[run] = struct{}{}
		}
	}
	runs := make([]int, 0, len(runSet))
	for run := range runSet {
		runs = append(runs, run)
	}
	sort.Ints(runs)

	layout := model.LayoutID(metrics)
	out := make([]model.RunFingerprint, 0, len(runs))
	for _, run := range runs {
		vec := model.NewFingerprint(f.Dim(len(columns)))
		for i, c := range columns {
			vec[i] = float32(f.scale(c.Z[run]))
		}
		vec[len(columns)] = f.Baseline

		out = append(out, model.RunFingerprint{
			ID:        model.GenerateFingerprintID(run, layout),
			Run:       run,
			Verdict:   verdicts[run],
			Layout:    layout,
			Embedding: vec,
		})
	}
	return out
}

// scale clips z to ±ClipZ and maps it onto [-1, 1]
func (f *Fingerprinter) scale(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	if z > f.ClipZ {
		z = f.ClipZ
	}
	if z < -f.ClipZ {
		z = -f.ClipZ
	}
	return z / f.ClipZ
}
