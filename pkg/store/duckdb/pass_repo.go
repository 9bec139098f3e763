package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoPass is returned when no analysis pass has been stored
var ErrNoPass = errors.New("no analysis pass stored")

// Pass is the stored header of one analysis pass
type Pass struct {
	ID        string
	StartedAt time.Time
	Metrics   int
	Runs      int
	Good      int
	Suspect   int
	Bad       int
}

// PassRepo handles analysis pass persistence
type PassRepo struct {
	client *Client
}

// NewPassRepo creates a new pass repository
func NewPassRepo(client *Client) *PassRepo {
	return &PassRepo{client: client}
}

// Insert inserts or replaces a pass header
func (r *PassRepo) Insert(ctx context.Context, p Pass) error {
	query := `
		INSERT INTO qa_passes (pass_id, started_at, n_metrics, n_runs, n_good, n_suspect, n_bad)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pass_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			n_metrics = EXCLUDED.n_metrics,
			n_runs = EXCLUDED.n_runs,
			n_good = EXCLUDED.n_good,
			n_suspect = EXCLUDED.n_suspect,
			n_bad = EXCLUDED.n_bad
	`
	if err := r.client.Exec(ctx, query, p.ID, p.StartedAt, p.Metrics, p.Runs, p.Good, p.Suspect, p.Bad); err != nil {
		return fmt.Errorf("failed to insert pass: %w", err)
	}
	return nil
}

// Latest returns the most recently started pass
func (r *PassRepo) Latest(ctx context.Context) (*Pass, error) {
	query := `
		SELECT pass_id, started_at, n_metrics, n_runs, n_good, n_suspect, n_bad
		FROM qa_passes
		ORDER BY started_at DESC
		LIMIT 1
	`
	var p Pass
	err := r.client.QueryRow(ctx, query).Scan(&p.ID, &p.StartedAt, &p.Metrics, &p.Runs, &p.Good, &p.Suspect, &p.Bad)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPass
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest pass: %w", err)
	}
	return &p, nil
}

// Count returns the number of stored passes
func (r *PassRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.client.QueryRow(ctx, "SELECT COUNT(*) FROM qa_passes").Scan(&count)
	return count, err
}
