package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutID(t *testing.T) {
	a := LayoutID([]string{"adc_mpv", "cluster_size"})
	b := LayoutID([]string{"cluster_size", "adc_mpv"})

	assert.Len(t, a, 16)
	assert.Equal(t, a, LayoutID([]string{"adc_mpv", "cluster_size"}))
	assert.NotEqual(t, a, b)
}

func TestGenerateFingerprintID(t *testing.T) {
	layout := LayoutID([]string{"adc_mpv"})

	id := GenerateFingerprintID(4, layout)
	assert.Len(t, id, 32)
	assert.Equal(t, id, GenerateFingerprintID(4, layout))
	assert.NotEqual(t, id, GenerateFingerprintID(5, layout))
	assert.NotEqual(t, id, GenerateFingerprintID(4, LayoutID([]string{"cluster_size"})))
}

func TestFingerprintToFloat64(t *testing.T) {
	f := NewFingerprint(3)
	f[0], f[1], f[2] = 0.5, -1, 0.25

	assert.Equal(t, 3, f.Dim())
	assert.Equal(t, []float64{0.5, -1, 0.25}, f.ToFloat64())
}
