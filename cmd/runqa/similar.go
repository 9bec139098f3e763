package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/rerank"
	"github.com/tunogya/runqa/pkg/store/milvus"
)

func newSimilarCmd(a *app) *cobra.Command {
	var (
		run         int
		topK        int
		useSegments bool
		minScore    float64
		flaggedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Find past runs whose anomaly fingerprint resembles a run",
		Long: `Recompute the current pass, take the fingerprint of --run and search the
fingerprint index for runs with the same pattern of deviations.

Examples:
  # Ten runs most similar to run 4
  runqa similar --run 4

  # Only past runs that were themselves flagged
  runqa similar --run 4 --flagged`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			p, err := a.runPass(ctx)
			if err != nil {
				return err
			}

			var query *model.RunFingerprint
			for i := range p.result.Fingerprints {
				if p.result.Fingerprints[i].Run == run {
					query = &p.result.Fingerprints[i]
					break
				}
			}
			if query == nil {
				return fmt.Errorf("run %d not found in the current inputs", run)
			}

			client, err := a.milvusClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			collection := a.cfg.Milvus.Collection
			if err := client.LoadCollection(ctx, collection); err != nil {
				return fmt.Errorf("failed to load collection: %w", err)
			}

			a.logger.Info("Searching similar runs", zap.Int("run", run), zap.Int("top_k", topK))
			// One extra hit leaves room for the query run itself
			results, err := client.Search(ctx, collection, query.Embedding, milvus.LayoutFilter(query.Layout), topK+1)
			if err != nil {
				return err
			}

			cfg := rerank.DefaultRunDecayConfig()
			if useSegments {
				cfg = rerank.SegmentConfig()
			}
			ranked := rerank.ExcludeRun(rerank.NewReranker(cfg).Rerank(results, run), run)
			ranked = rerank.FilterByMinScore(ranked, minScore)
			if flaggedOnly {
				ranked = rerank.FilterByVerdict(ranked, model.VerdictSuspect, model.VerdictBad)
			}
			if len(ranked) > topK {
				ranked = ranked[:topK]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "RANK\tRUN\tVERDICT\tSIMILARITY\tSCORE\n")
			for i, r := range ranked {
				fmt.Fprintf(w, "%d\t%d\t%s\t%.4f\t%.4f\n", i+1, r.Run, r.Verdict, r.OriginalScore, r.FinalScore)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&run, "run", 0, "run to search from")
	cmd.Flags().IntVar(&topK, "topk", 10, "number of similar runs to show")
	cmd.Flags().BoolVar(&useSegments, "segments", false, "weight by run-distance segments instead of exponential decay")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop matches scoring below this after reranking")
	cmd.Flags().BoolVar(&flaggedOnly, "flagged", false, "only show runs that were SUSPECT or BAD")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
