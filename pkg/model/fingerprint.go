package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint is a fixed-length float32 vector describing how anomalous
// each metric was in one run. Component i belongs to the i-th metric of
// the analysis, in metric order.
type Fingerprint []float32

// NewFingerprint creates a zero fingerprint with the given dimension
func NewFingerprint(dim int) Fingerprint {
	return make(Fingerprint, dim)
}

// Dim returns the dimension of the fingerprint
func (f Fingerprint) Dim() int {
	return len(f)
}

// ToFloat64 converts the fingerprint to a float64 slice
func (f Fingerprint) ToFloat64() []float64 {
	result := make([]float64, len(f))
	for i, v := range f {
		result[i] = float64(v)
	}
	return result
}

// RunFingerprint ties a fingerprint to its run and metric layout
type RunFingerprint struct {
	ID        string      `json:"id"`
	Run       int         `json:"run"`
	Verdict   Verdict     `json:"verdict"`
	Layout    string      `json:"layout"` // hash of the metric list the vector follows
	Embedding Fingerprint `json:"embedding"`
}

// LayoutID hashes an ordered metric list. Fingerprints are only comparable
// when their layouts match.
func LayoutID(metrics []string) string {
	hash := sha256.Sum256([]byte(strings.Join(metrics, "|")))
	return hex.EncodeToString(hash[:8])
}

// GenerateFingerprintID creates a deterministic ID for a run under a layout.
// Re-analysing the same run overwrites the same record.
func GenerateFingerprintID(run int, layout string) string {
	data := fmt.Sprintf("%d|%s", run, layout)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
