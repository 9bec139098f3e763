package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/metrics"
	"github.com/tunogya/runqa/pkg/pipeline"
	"github.com/tunogya/runqa/pkg/queue/nats"
	"github.com/tunogya/runqa/pkg/report"
	"github.com/tunogya/runqa/pkg/store/duckdb"
	"github.com/tunogya/runqa/pkg/store/milvus"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		outDir     string
		convention string
		noHTML     bool
		publish    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse every configured metric and write verdict reports",
		Long: `Analyse every metric listed in metrics.conf and write per-metric diagnostics,
verdicts.csv, run_verdicts.csv and VERDICT.md into the output directory.

Examples:
  # Analyse with ./runqa.yaml
  runqa analyze

  # Use the documented pipeline thresholds and another output directory
  runqa analyze --convention pipeline_doc --out qa_strict

  # Hand results to a writer worker instead of writing DuckDB directly
  runqa analyze --publish`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir != "" {
				a.cfg.Output.Dir = outDir
			}
			if convention != "" {
				a.cfg.Analysis.Convention = convention
			}
			if noHTML {
				a.cfg.Output.HTML = false
			}
			if publish {
				a.cfg.NATS.Enabled = true
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.analyze(ctx, cmd)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (overrides output.dir)")
	cmd.Flags().StringVar(&convention, "convention", "", "outlier threshold convention: local_z or pipeline_doc")
	cmd.Flags().BoolVar(&noHTML, "no-html", false, "skip the HTML rendering of VERDICT.md")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish results to NATS for a writer worker")
	return cmd
}

func (a *app) analyze(ctx context.Context, cmd *cobra.Command) error {
	p, err := a.runPass(ctx)
	if err != nil {
		return err
	}
	res := p.result

	writer, err := report.NewWriter(a.cfg.Output.Dir, a.cfg.Output.HTML)
	if err != nil {
		return err
	}
	written, err := writer.WriteAll(res, p.segments, p.contexts)
	if err != nil {
		return err
	}
	a.logger.Info("Wrote reports", zap.String("dir", a.cfg.Output.Dir), zap.Int("files", len(written)))

	if a.cfg.DuckDB.Enabled && !a.cfg.NATS.Enabled {
		if err := a.saveDuckDB(ctx, res); err != nil {
			return err
		}
	}
	if a.cfg.NATS.Enabled {
		if err := a.publish(ctx, res); err != nil {
			return err
		}
	}
	if a.cfg.Milvus.Enabled {
		if err := a.indexFingerprints(ctx, res); err != nil {
			return err
		}
	}
	if a.cfg.Output.Textfile != "" {
		if err := metrics.WriteTextfile(a.cfg.Output.Textfile); err != nil {
			return err
		}
	}

	tally := res.Tally()
	fmt.Fprintf(cmd.OutOrStdout(), "Pass %s: %d runs, %d good, %d suspect, %d bad\n",
		res.PassID, tally.Total(), tally.Good, tally.Suspect, tally.Bad)
	fmt.Fprintln(cmd.OutOrStdout(), tally.Recommendation())
	return nil
}

func (a *app) openDuckDB(ctx context.Context) (*duckdb.Client, error) {
	client, err := duckdb.NewClient(a.cfg.DuckDB.Path)
	if err != nil {
		return nil, err
	}
	if err := duckdb.InitializeSchema(ctx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (a *app) saveDuckDB(ctx context.Context, res *pipeline.Result) error {
	client, err := a.openDuckDB(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := duckdb.NewResultStore(client).SaveResult(ctx, res); err != nil {
		return err
	}
	a.logger.Info("Stored pass in DuckDB", zap.String("path", a.cfg.DuckDB.Path), zap.String("pass_id", res.PassID))
	return nil
}

func (a *app) natsClient(ctx context.Context) (*nats.Client, error) {
	client, err := nats.NewClient(nats.Config{
		URL:           a.cfg.NATS.URL,
		StreamName:    a.cfg.NATS.Stream,
		RetryAttempts: a.cfg.NATS.RetryAttempts,
		RetryDelay:    a.cfg.NATS.RetryDelay,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	if err := client.CreateStream(ctx, nats.Subjects()); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (a *app) publish(ctx context.Context, res *pipeline.Result) error {
	client, err := a.natsClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PublishResult(ctx, res); err != nil {
		return err
	}
	a.logger.Info("Published pass", zap.String("pass_id", res.PassID), zap.Int("metrics", len(res.Metrics)))
	return nil
}

func (a *app) milvusClient(ctx context.Context) (*milvus.Client, error) {
	return milvus.NewClient(ctx, milvus.Config{
		Address:  a.cfg.Milvus.Address,
		Username: a.cfg.Milvus.Username,
		Password: a.cfg.Milvus.Password,
	})
}

func (a *app) indexFingerprints(ctx context.Context, res *pipeline.Result) error {
	if len(res.Fingerprints) == 0 {
		return nil
	}

	client, err := a.milvusClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	collection := a.cfg.Milvus.Collection
	dim := feature.NewFingerprinter().Dim(len(res.Metrics))
	cfg := milvus.DefaultCollectionConfig(dim)
	cfg.Name = collection
	if err := client.CreateCollection(ctx, cfg); err != nil {
		return err
	}
	if err := client.InsertBatch(ctx, collection, res.PassID, res.Fingerprints); err != nil {
		return err
	}
	if err := client.Flush(ctx, collection); err != nil {
		return fmt.Errorf("failed to flush fingerprints: %w", err)
	}
	a.logger.Info("Indexed run fingerprints", zap.String("collection", collection), zap.Int("runs", len(res.Fingerprints)))
	return nil
}
