package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunogya/runqa/pkg/model"
)

// PointRepo handles per-point diagnostics persistence
type PointRepo struct {
	client *Client
}

// NewPointRepo creates a new point repository
func NewPointRepo(client *Client) *PointRepo {
	return &PointRepo{client: client}
}

// InsertBatch inserts the point records of one pass in a transaction
func (r *PointRepo) InsertBatch(ctx context.Context, passID string, records []model.PointRecord) error {
	query := `
		INSERT INTO qa_points (
			pass_id, metric, run, value, stat_err, entries,
			neighbors_median, neighbors_mad, z_local, is_outlier_weak, is_outlier_strong,
			ewma, shewhart_ooc, cusum_pos, cusum_neg, control_flag,
			z_global, qc_status, qc_reason
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pass_id, metric, run) DO UPDATE SET
			value = EXCLUDED.value,
			stat_err = EXCLUDED.stat_err,
			entries = EXCLUDED.entries,
			neighbors_median = EXCLUDED.neighbors_median,
			neighbors_mad = EXCLUDED.neighbors_mad,
			z_local = EXCLUDED.z_local,
			is_outlier_weak = EXCLUDED.is_outlier_weak,
			is_outlier_strong = EXCLUDED.is_outlier_strong,
			ewma = EXCLUDED.ewma,
			shewhart_ooc = EXCLUDED.shewhart_ooc,
			cusum_pos = EXCLUDED.cusum_pos,
			cusum_neg = EXCLUDED.cusum_neg,
			control_flag = EXCLUDED.control_flag,
			z_global = EXCLUDED.z_global,
			qc_status = EXCLUDED.qc_status,
			qc_reason = EXCLUDED.qc_reason
	`
	err := r.client.execBatch(ctx, query, len(records), func(i int) []any {
		p := records[i]
		return []any{
			passID, p.Metric, p.Run, nullFloat(p.Value), nullFloat(p.StatErr), nullFloat(p.Entries),
			nullFloat(p.Median), nullFloat(p.MAD), nullFloat(p.Z), p.Weak, p.Strong,
			nullFloat(p.EWMA), p.ShewhartOOC, nullFloat(p.CusumPos), nullFloat(p.CusumNeg), string(p.ControlFlag),
			nullFloat(p.ZGlobal), string(p.QCStatus), p.QCReason,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to insert points: %w", err)
	}
	return nil
}

// GetSeries returns the stored records of one metric in a pass, ordered by run
func (r *PointRepo) GetSeries(ctx context.Context, passID, metric string) ([]model.PointRecord, error) {
	query := `
		SELECT metric, run, value, stat_err, entries,
			   neighbors_median, neighbors_mad, z_local, is_outlier_weak, is_outlier_strong,
			   ewma, shewhart_ooc, cusum_pos, cusum_neg, control_flag,
			   z_global, qc_status, qc_reason
		FROM qa_points
		WHERE pass_id = ? AND metric = ?
		ORDER BY run ASC
	`
	rows, err := r.client.Query(ctx, query, passID, metric)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var out []model.PointRecord
	for rows.Next() {
		var p model.PointRecord
		var value, statErr, entries, median, mad, z, ewma, cusPos, cusNeg, zGlobal sql.NullFloat64
		var control, status string
		if err := rows.Scan(
			&p.Metric, &p.Run, &value, &statErr, &entries,
			&median, &mad, &z, &p.Weak, &p.Strong,
			&ewma, &p.ShewhartOOC, &cusPos, &cusNeg, &control,
			&zGlobal, &status, &p.QCReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		p.Value, p.StatErr, p.Entries = floatOrNaN(value), floatOrNaN(statErr), floatOrNaN(entries)
		p.Median, p.MAD, p.Z = floatOrNaN(median), floatOrNaN(mad), floatOrNaN(z)
		p.EWMA, p.CusumPos, p.CusumNeg = floatOrNaN(ewma), floatOrNaN(cusPos), floatOrNaN(cusNeg)
		p.ZGlobal = floatOrNaN(zGlobal)
		p.ControlFlag, p.QCStatus = model.Flag(control), model.Flag(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
