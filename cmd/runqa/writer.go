package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/runqa/pkg/queue/nats"
	"github.com/tunogya/runqa/pkg/store/duckdb"
	"github.com/tunogya/runqa/pkg/verdict"
)

func newWriterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "writer",
		Short: "Consume published passes from NATS and store them in DuckDB",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := a.logger.Named("writer")
			logger.Info("Starting writer worker",
				zap.String("nats", a.cfg.NATS.URL),
				zap.String("duckdb", a.cfg.DuckDB.Path),
			)

			duckClient, err := a.openDuckDB(ctx)
			if err != nil {
				return err
			}
			defer duckClient.Close()
			store := duckdb.NewResultStore(duckClient)

			natsClient, err := a.natsClient(ctx)
			if err != nil {
				return err
			}
			defer natsClient.Close()

			metricConsumer, err := natsClient.Subscribe(ctx, nats.SubjectMetricWrite, "metric-writer", func(msg jetstream.Msg) error {
				batch, err := nats.DecodeMetricBatch(msg.Data())
				if err != nil {
					return err
				}
				if err := store.SaveMetric(ctx, batch.PassID, batch.PointRecords(), batch.TrendStats(), batch.RunMetricVerdicts()); err != nil {
					return err
				}
				logger.Debug("Stored metric batch",
					zap.String("pass_id", batch.PassID),
					zap.String("metric", batch.Metric),
					zap.Int("points", len(batch.Points)),
				)
				return nil
			})
			if err != nil {
				return err
			}
			defer metricConsumer.Stop()

			passConsumer, err := natsClient.Subscribe(ctx, nats.SubjectPassWrite, "pass-writer", func(msg jetstream.Msg) error {
				p, err := nats.DecodePass(msg.Data())
				if err != nil {
					return err
				}
				tally := verdict.Count(p.Runs)
				header := duckdb.Pass{
					ID:        p.PassID,
					StartedAt: p.StartedAt,
					Metrics:   p.Metrics,
					Runs:      tally.Total(),
					Good:      tally.Good,
					Suspect:   tally.Suspect,
					Bad:       tally.Bad,
				}
				if err := store.SaveRuns(ctx, header, p.Runs); err != nil {
					return err
				}
				logger.Info("Stored pass", zap.String("pass_id", p.PassID), zap.Int("runs", len(p.Runs)))
				return nil
			})
			if err != nil {
				return err
			}
			defer passConsumer.Stop()

			logger.Info("Writer worker started, waiting for messages")
			<-ctx.Done()
			logger.Info("Shutting down writer worker")
			return nil
		},
	}
}
