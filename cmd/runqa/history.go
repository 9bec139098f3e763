package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/store/duckdb"
)

func newHistoryCmd(a *app) *cobra.Command {
	var run int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored verdicts of a run across passes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client, err := a.openDuckDB(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			store := duckdb.NewResultStore(client)

			latest, err := store.Passes.Latest(ctx)
			if errors.Is(err, duckdb.ErrNoPass) {
				fmt.Fprintln(cmd.OutOrStdout(), "No passes stored yet.")
				return nil
			}
			if err != nil {
				return err
			}

			history, err := store.Verdicts.History(ctx, run)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "PASS\tSTARTED\tVERDICT\tSUMMARY\n")
			for _, h := range history {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.PassID, h.StartedAt.Format("2006-01-02 15:04"), h.Verdict, h.Summary())
			}
			if err := w.Flush(); err != nil {
				return err
			}

			verdicts, err := store.Verdicts.GetByRun(ctx, latest.ID, run)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nLatest pass %s:\n", latest.ID)
			for _, v := range verdicts {
				if v.Verdict == model.VerdictGood {
					continue
				}
				fmt.Fprintf(out, "  %s %s (%s, %s): %s\n", v.Metric, v.Verdict, v.Pattern, v.Severity, v.Action)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&run, "run", 0, "run number")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
