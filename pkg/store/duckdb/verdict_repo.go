package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tunogya/runqa/pkg/model"
)

// causeSeparator joins causes in one column; causes never span lines
const causeSeparator = "\n"

// VerdictRepo handles verdict persistence for both (run, metric) and per-run rows
type VerdictRepo struct {
	client *Client
}

// NewVerdictRepo creates a new verdict repository
func NewVerdictRepo(client *Client) *VerdictRepo {
	return &VerdictRepo{client: client}
}

// InsertBatch inserts (run, metric) verdicts of one pass in a transaction
func (r *VerdictRepo) InsertBatch(ctx context.Context, passID string, verdicts []model.RunMetricVerdict) error {
	query := `
		INSERT INTO qa_verdicts (
			pass_id, run, metric, verdict, severity, pattern, causes, action, z_local, value, no_data
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pass_id, run, metric) DO UPDATE SET
			verdict = EXCLUDED.verdict,
			severity = EXCLUDED.severity,
			pattern = EXCLUDED.pattern,
			causes = EXCLUDED.causes,
			action = EXCLUDED.action,
			z_local = EXCLUDED.z_local,
			value = EXCLUDED.value,
			no_data = EXCLUDED.no_data
	`
	err := r.client.execBatch(ctx, query, len(verdicts), func(i int) []any {
		v := verdicts[i]
		return []any{
			passID, v.Run, v.Metric, string(v.Verdict), string(v.Severity), string(v.Pattern),
			strings.Join(v.Causes, causeSeparator), v.Action, nullFloat(v.Z), nullFloat(v.Value), v.NoData,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to insert verdicts: %w", err)
	}
	return nil
}

// InsertRunBatch inserts per-run verdicts of one pass in a transaction
func (r *VerdictRepo) InsertRunBatch(ctx context.Context, passID string, runs []model.RunVerdict) error {
	query := `
		INSERT INTO qa_run_verdicts (pass_id, run, verdict, n_good, n_suspect, n_bad, worst_metric)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pass_id, run) DO UPDATE SET
			verdict = EXCLUDED.verdict,
			n_good = EXCLUDED.n_good,
			n_suspect = EXCLUDED.n_suspect,
			n_bad = EXCLUDED.n_bad,
			worst_metric = EXCLUDED.worst_metric
	`
	err := r.client.execBatch(ctx, query, len(runs), func(i int) []any {
		rv := runs[i]
		return []any{passID, rv.Run, string(rv.Verdict), rv.NGood, rv.NSuspect, rv.NBad, rv.WorstMetric}
	})
	if err != nil {
		return fmt.Errorf("failed to insert run verdicts: %w", err)
	}
	return nil
}

// GetByRun returns the (run, metric) verdicts of one run in a pass, ordered by metric
func (r *VerdictRepo) GetByRun(ctx context.Context, passID string, run int) ([]model.RunMetricVerdict, error) {
	query := `
		SELECT run, metric, verdict, severity, pattern, causes, action, z_local, value, no_data
		FROM qa_verdicts
		WHERE pass_id = ? AND run = ?
		ORDER BY metric ASC
	`
	rows, err := r.client.Query(ctx, query, passID, run)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var out []model.RunMetricVerdict
	for rows.Next() {
		var v model.RunMetricVerdict
		var verdict, severity, pattern string
		var causes, action sql.NullString
		var z, value sql.NullFloat64
		if err := rows.Scan(&v.Run, &v.Metric, &verdict, &severity, &pattern, &causes, &action, &z, &value, &v.NoData); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.Verdict, v.Severity, v.Pattern = model.Verdict(verdict), model.Severity(severity), model.Pattern(pattern)
		if causes.String != "" {
			v.Causes = strings.Split(causes.String, causeSeparator)
		}
		v.Action = action.String
		v.Z, v.Value = floatOrNaN(z), floatOrNaN(value)
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetRuns returns the per-run verdicts of a pass, ordered by run
func (r *VerdictRepo) GetRuns(ctx context.Context, passID string) ([]model.RunVerdict, error) {
	query := `
		SELECT run, verdict, n_good, n_suspect, n_bad, worst_metric
		FROM qa_run_verdicts
		WHERE pass_id = ?
		ORDER BY run ASC
	`
	rows, err := r.client.Query(ctx, query, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run verdicts: %w", err)
	}
	defer rows.Close()

	var out []model.RunVerdict
	for rows.Next() {
		rv, err := scanRunVerdict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// RunHistory is the verdict of one run in one stored pass
type RunHistory struct {
	PassID    string
	StartedAt time.Time
	model.RunVerdict
}

// History returns every stored verdict of a run, newest pass first
func (r *VerdictRepo) History(ctx context.Context, run int) ([]RunHistory, error) {
	query := `
		SELECT p.pass_id, p.started_at, v.run, v.verdict, v.n_good, v.n_suspect, v.n_bad, v.worst_metric
		FROM qa_run_verdicts v
		JOIN qa_passes p ON p.pass_id = v.pass_id
		WHERE v.run = ?
		ORDER BY p.started_at DESC
	`
	rows, err := r.client.Query(ctx, query, run)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var out []RunHistory
	for rows.Next() {
		var h RunHistory
		var verdict string
		var worst sql.NullString
		if err := rows.Scan(&h.PassID, &h.StartedAt, &h.Run, &verdict, &h.NGood, &h.NSuspect, &h.NBad, &worst); err != nil {
			return nil, fmt.Errorf("failed to scan run history: %w", err)
		}
		h.Verdict = model.Verdict(verdict)
		h.WorstMetric = worst.String
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanRunVerdict(rows *sql.Rows) (model.RunVerdict, error) {
	var rv model.RunVerdict
	var verdict string
	var worst sql.NullString
	if err := rows.Scan(&rv.Run, &verdict, &rv.NGood, &rv.NSuspect, &rv.NBad, &worst); err != nil {
		return rv, fmt.Errorf("failed to scan run verdict: %w", err)
	}
	rv.Verdict = model.Verdict(verdict)
	rv.WorstMetric = worst.String
	return rv, nil
}
