package duckdb

import (
	"context"
	"fmt"
)

// CreatePassesTable creates the analysis pass table
const CreatePassesTable = `
CREATE TABLE IF NOT EXISTS qa_passes (
    pass_id VARCHAR PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    n_metrics INTEGER NOT NULL,
    n_runs INTEGER NOT NULL,
    n_good INTEGER NOT NULL,
    n_suspect INTEGER NOT NULL,
    n_bad INTEGER NOT NULL
);
`

// CreatePointsTable creates the per-point diagnostics table
const CreatePointsTable = `
CREATE TABLE IF NOT EXISTS qa_points (
    pass_id VARCHAR NOT NULL,
    metric VARCHAR NOT NULL,
    run INTEGER NOT NULL,
    value DOUBLE,
    stat_err DOUBLE,
    entries DOUBLE,
    neighbors_median DOUBLE,
    neighbors_mad DOUBLE,
    z_local DOUBLE,
    is_outlier_weak BOOLEAN,
    is_outlier_strong BOOLEAN,
    ewma DOUBLE,
    shewhart_ooc BOOLEAN,
    cusum_pos DOUBLE,
    cusum_neg DOUBLE,
    control_flag VARCHAR,
    z_global DOUBLE,
    qc_status VARCHAR,
    qc_reason VARCHAR,
    PRIMARY KEY (pass_id, metric, run)
);

CREATE INDEX IF NOT EXISTS idx_points_metric_run ON qa_points(metric, run);
`

// CreateTrendsTable creates the per-metric trend summary table
const CreateTrendsTable = `
CREATE TABLE IF NOT EXISTS qa_trends (
    pass_id VARCHAR NOT NULL,
    metric VARCHAR NOT NULL,
    n INTEGER NOT NULL,
    median DOUBLE,
    robust_sigma DOUBLE,
    slope DOUBLE,
    slope_err DOUBLE,
    slope_valid BOOLEAN,
    intercept DOUBLE,
    p_value DOUBLE,
    cp_run INTEGER,
    cp_index INTEGER,
    cp_delta_bic DOUBLE,
    cp_beats_trend BOOLEAN,
    cp_robust_shift BOOLEAN,
    cp_strong BOOLEAN,
    PRIMARY KEY (pass_id, metric)
);
`

// CreateVerdictsTable creates the (run, metric) verdict table
const CreateVerdictsTable = `
CREATE TABLE IF NOT EXISTS qa_verdicts (
    pass_id VARCHAR NOT NULL,
    run INTEGER NOT NULL,
    metric VARCHAR NOT NULL,
    verdict VARCHAR NOT NULL,
    severity VARCHAR NOT NULL,
    pattern VARCHAR NOT NULL,
    causes VARCHAR,
    action VARCHAR,
    z_local DOUBLE,
    value DOUBLE,
    no_data BOOLEAN,
    PRIMARY KEY (pass_id, run, metric)
);

CREATE INDEX IF NOT EXISTS idx_verdicts_run ON qa_verdicts(run);
`

// CreateRunVerdictsTable creates the per-run rollup table
const CreateRunVerdictsTable = `
CREATE TABLE IF NOT EXISTS qa_run_verdicts (
    pass_id VARCHAR NOT NULL,
    run INTEGER NOT NULL,
    verdict VARCHAR NOT NULL,
    n_good INTEGER NOT NULL,
    n_suspect INTEGER NOT NULL,
    n_bad INTEGER NOT NULL,
    worst_metric VARCHAR,
    PRIMARY KEY (pass_id, run)
);
`

var tables = []string{"qa_run_verdicts", "qa_verdicts", "qa_trends", "qa_points", "qa_passes"}

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	schemas := []string{
		CreatePassesTable,
		CreatePointsTable,
		CreateTrendsTable,
		CreateVerdictsTable,
		CreateRunVerdictsTable,
	}

	for _, schema := range schemas {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with caution)
func DropAllTables(ctx context.Context, c *Client) error {
	for _, table := range tables {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
