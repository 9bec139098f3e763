package duckdb

import (
	"context"
	"fmt"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/pipeline"
)

// ResultStore persists whole analysis passes
type ResultStore struct {
	client   *Client
	Passes   *PassRepo
	Points   *PointRepo
	Trends   *TrendRepo
	Verdicts *VerdictRepo
}

// NewResultStore creates a store over every repository of client
func NewResultStore(client *Client) *ResultStore {
	return &ResultStore{
		client:   client,
		Passes:   NewPassRepo(client),
		Points:   NewPointRepo(client),
		Trends:   NewTrendRepo(client),
		Verdicts: NewVerdictRepo(client),
	}
}

// SaveMetric stores the points, trend and verdicts of one metric
func (s *ResultStore) SaveMetric(ctx context.Context, passID string, points []model.PointRecord, trend model.TrendStats, verdicts []model.RunMetricVerdict) error {
	return s.client.InTx(ctx, func(ctx context.Context) error {
		if err := s.Points.InsertBatch(ctx, passID, points); err != nil {
			return err
		}
		if err := s.Trends.InsertBatch(ctx, passID, []model.TrendStats{trend}); err != nil {
			return err
		}
		return s.Verdicts.InsertBatch(ctx, passID, verdicts)
	})
}

// SaveRuns stores the pass header and its per-run rollup
func (s *ResultStore) SaveRuns(ctx context.Context, pass Pass, runs []model.RunVerdict) error {
	return s.client.InTx(ctx, func(ctx context.Context) error {
		if err := s.Passes.Insert(ctx, pass); err != nil {
			return err
		}
		return s.Verdicts.InsertRunBatch(ctx, pass.ID, runs)
	})
}

// SaveResult stores a complete pass in one transaction. A failure leaves
// nothing of the pass behind.
func (s *ResultStore) SaveResult(ctx context.Context, res *pipeline.Result) error {
	return s.client.InTx(ctx, func(ctx context.Context) error {
		for _, m := range res.Metrics {
			if err := s.SaveMetric(ctx, res.PassID, m.Records(), m.Trend, m.Verdicts); err != nil {
				return fmt.Errorf("failed to save %s: %w", m.Metric, err)
			}
		}
		return s.SaveRuns(ctx, PassFromResult(res), res.Runs)
	})
}

// PassFromResult builds the pass header of a result
func PassFromResult(res *pipeline.Result) Pass {
	tally := res.Tally()
	return Pass{
		ID:        res.PassID,
		StartedAt: res.StartedAt,
		Metrics:   len(res.Metrics),
		Runs:      tally.Total(),
		Good:      tally.Good,
		Suspect:   tally.Suspect,
		Bad:       tally.Bad,
	}
}
