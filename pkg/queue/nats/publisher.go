package nats

import (
	"context"
	"fmt"

	"github.com/tunogya/runqa/pkg/pipeline"
)

// PublishResult sends one batch per metric, then the pass rollup.
func (c *Client) PublishResult(ctx context.Context, res *pipeline.Result) error {
	for _, m := range res.Metrics {
		msg := NewMetricBatchMsg(res.PassID, m.Metric, m.Records(), m.Trend, m.Verdicts)
		if err := c.PublishJSON(ctx, SubjectMetricWrite, msg); err != nil {
			return fmt.Errorf("failed to publish %s: %w", m.Metric, err)
		}
	}

	pass := &PassMsg{
		PassID:    res.PassID,
		StartedAt: res.StartedAt,
		Metrics:   len(res.Metrics),
		Runs:      res.Runs,
	}
	if err := c.PublishJSON(ctx, SubjectPassWrite, pass); err != nil {
		return fmt.Errorf("failed to publish pass %s: %w", res.PassID, err)
	}
	return nil
}
