package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunogya/runqa/pkg/model"
)

func TestQCStatus(t *testing.T) {
	// median 10, MAD 1: the last point sits about 60 robust sigmas out
	values := []float64{10, 10, 11, 9, 10, 11, 9, 10, 100}

	tests := []struct {
		name       string
		threshold  *model.Threshold
		config     QCConfig
		index      int
		wantStatus model.Flag
		wantReason string
	}{
		{
			name:       "breach and outlier",
			threshold:  &model.Threshold{Metric: "cluster_size", Lo: 0, Hi: 50},
			config:     DefaultQCConfig(),
			index:      8,
			wantStatus: model.FlagFail,
			wantReason: "threshold+robust_z",
		},
		{
			name:       "breach only",
			threshold:  &model.Threshold{Metric: "cluster_size", Lo: 0, Hi: 10.5},
			config:     DefaultQCConfig(),
			index:      2,
			wantStatus: model.FlagFail,
			wantReason: "threshold",
		},
		{
			name:       "outlier only",
			config:     DefaultQCConfig(),
			index:      8,
			wantStatus: model.FlagWarn,
			wantReason: "robust_z",
		},
		{
			name:       "outlier check disabled",
			config:     QCConfig{},
			index:      8,
			wantStatus: model.FlagPass,
		},
		{
			name:       "inside bounds",
			threshold:  &model.Threshold{Metric: "cluster_size", Lo: 0, Hi: 200},
			config:     DefaultQCConfig(),
			index:      3,
			wantStatus: model.FlagPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := QCStatus(newSeries(t, values), tt.threshold, tt.config)
			assert.Len(t, out, len(values))
			got := out[tt.index]
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestQCStatusGlobalZ(t *testing.T) {
	values := []float64{10, 10, 11, 9, 10, 11, 9, 10, 100}
	out := QCStatus(newSeries(t, values), nil, DefaultQCConfig())

	assert.InDelta(t, 90/1.4826, out[8].ZGlobal, 1e-9)
	assert.InDelta(t, -1/1.4826, out[3].ZGlobal, 1e-9)
	assert.Equal(t, 0.0, out[0].ZGlobal)
}

func TestQCStatusMissingAndConstant(t *testing.T) {
	out := QCStatus(newSeries(t, []float64{5, math.NaN(), 5, 5}), &model.Threshold{Lo: 0, Hi: 1}, DefaultQCConfig())

	assert.Equal(t, model.FlagPass, out[1].Status)
	assert.True(t, math.IsNaN(out[1].ZGlobal))

	// Zero spread gives z 0, but the hard bound still applies
	assert.Equal(t, 0.0, out[0].ZGlobal)
	assert.Equal(t, model.FlagFail, out[0].Status)
	assert.Equal(t, ReasonThreshold, out[0].Reason)
}
