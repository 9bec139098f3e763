package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunogya/runqa/pkg/model"
)

// TrendRepo handles per-metric trend summary persistence
type TrendRepo struct {
	client *Client
}

// NewTrendRepo creates a new trend repository
func NewTrendRepo(client *Client) *TrendRepo {
	return &TrendRepo{client: client}
}

// InsertBatch inserts the trend summaries of one pass in a transaction
func (r *TrendRepo) InsertBatch(ctx context.Context, passID string, trends []model.TrendStats) error {
	query := `
		INSERT INTO qa_trends (
			pass_id, metric, n, median, robust_sigma, slope, slope_err, slope_valid,
			intercept, p_value, cp_run, cp_index, cp_delta_bic, cp_beats_trend, cp_robust_shift, cp_strong
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pass_id, metric) DO UPDATE SET
			n = EXCLUDED.n,
			median = EXCLUDED.median,
			robust_sigma = EXCLUDED.robust_sigma,
			slope = EXCLUDED.slope,
			slope_err = EXCLUDED.slope_err,
			slope_valid = EXCLUDED.slope_valid,
			intercept = EXCLUDED.intercept,
			p_value = EXCLUDED.p_value,
			cp_run = EXCLUDED.cp_run,
			cp_index = EXCLUDED.cp_index,
			cp_delta_bic = EXCLUDED.cp_delta_bic,
			cp_beats_trend = EXCLUDED.cp_beats_trend,
			cp_robust_shift = EXCLUDED.cp_robust_shift,
			cp_strong = EXCLUDED.cp_strong
	`
	err := r.client.execBatch(ctx, query, len(trends), func(i int) []any {
		t := trends[i]
		var cpRun, cpIndex sql.NullInt64
		var cpBIC sql.NullFloat64
		var beats, shift, strong sql.NullBool
		if cp := t.Changepoint; cp != nil {
			cpRun = sql.NullInt64{Int64: int64(cp.Run), Valid: true}
			cpIndex = sql.NullInt64{Int64: int64(cp.Index), Valid: true}
			cpBIC = nullFloat(cp.DeltaBIC)
			beats = sql.NullBool{Bool: cp.BeatsTrend, Valid: true}
			shift = sql.NullBool{Bool: cp.RobustShift, Valid: true}
			strong = sql.NullBool{Bool: cp.Strong, Valid: true}
		}
		return []any{
			passID, t.Metric, t.N, nullFloat(t.Median), nullFloat(t.RobustSigma),
			nullFloat(t.Slope.Value), nullFloat(t.Slope.Err), t.Slope.Valid,
			nullFloat(t.Intercept), nullFloat(t.PValue),
			cpRun, cpIndex, cpBIC, beats, shift, strong,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to insert trends: %w", err)
	}
	return nil
}

// GetByPass returns the trend summaries of a pass, ordered by metric
func (r *TrendRepo) GetByPass(ctx context.Context, passID string) ([]model.TrendStats, error) {
	query := `
		SELECT metric, n, median, robust_sigma, slope, slope_err, slope_valid,
			   intercept, p_value, cp_run, cp_index, cp_delta_bic, cp_beats_trend, cp_robust_shift, cp_strong
		FROM qa_trends
		WHERE pass_id = ?
		ORDER BY metric ASC
	`
	rows, err := r.client.Query(ctx, query, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var out []model.TrendStats
	for rows.Next() {
		var t model.TrendStats
		var median, sigma, slope, slopeErr, intercept, pValue, cpBIC sql.NullFloat64
		var cpRun, cpIndex sql.NullInt64
		var beats, shift, strong sql.NullBool
		if err := rows.Scan(
			&t.Metric, &t.N, &median, &sigma, &slope, &slopeErr, &t.Slope.Valid,
			&intercept, &pValue, &cpRun, &cpIndex, &cpBIC, &beats, &shift, &strong,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		t.Median, t.RobustSigma = floatOrNaN(median), floatOrNaN(sigma)
		t.Slope.Value, t.Slope.Err = floatOrNaN(slope), floatOrNaN(slopeErr)
		t.Intercept, t.PValue = floatOrNaN(intercept), floatOrNaN(pValue)
		if cpRun.Valid {
			t.Changepoint = &model.Changepoint{
				Run:         int(cpRun.Int64),
				Index:       int(cpIndex.Int64),
				DeltaBIC:    floatOrNaN(cpBIC),
				BeatsTrend:  beats.Bool,
				RobustShift: shift.Bool,
				Strong:      strong.Bool,
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
