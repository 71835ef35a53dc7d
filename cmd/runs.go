package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/pipeline"
	"github.com/sells-group/tazflow/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
	Long:  "Commands for listing, viewing, summarizing and re-exporting runs recorded in the SQLite store.",
}

// -- runs list --

var (
	runsKind   string
	runsStatus string
	runsFocus  string
	runsLimit  int
)

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Kind:   store.RunKind(runsKind),
			Status: store.RunStatus(runsStatus),
			Focus:  runsFocus,
			Limit:  runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id> <file>",
	Short: "Re-export the arcs or estimates of a stored run as CSV",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		switch run.Kind {
		case store.RunArcs:
			arcs, err := st.ListArcs(ctx, run.ID)
			if err != nil {
				return eris.Wrap(err, "runs export")
			}
			return pipeline.ExportArcsCSV(arcs, args[1])
		case store.RunCensus:
			estimates, err := st.ListEstimates(ctx, run.ID)
			if err != nil {
				return eris.Wrap(err, "runs export")
			}
			var params pipeline.CensusParams
			if err := json.Unmarshal(run.Params, &params); err != nil {
				return eris.Wrap(err, "runs export: decode params")
			}
			return pipeline.ExportEstimatesCSV(estimates, params.Fields, args[1])
		}
		return eris.Errorf("runs export: unknown run kind %q", run.Kind)
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsKind, "kind", "", "filter by run kind (arcs, census)")
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().StringVar(&runsFocus, "focus", "", "filter by focus zone")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Arcs       int
	Census     int
	Complete   int
	Failed     int
	Running    int
	Trips      int64
	AvgDurSecs float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []store.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Kind {
		case store.RunArcs:
			s.Arcs++
		case store.RunCensus:
			s.Census++
		}

		switch r.Status {
		case store.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
			if r.Kind == store.RunArcs && len(r.Summary) > 0 {
				var sum flow.Summary
				if err := json.Unmarshal(r.Summary, &sum); err == nil {
					s.Trips += sum.Trips
				}
			}
		case store.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tFOCUS\tSTATUS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		focus := r.Focus
		if focus == "" {
			focus = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			focus,
			r.Status,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Arcs:\t%d\n", s.Arcs)
	_, _ = fmt.Fprintf(w, "  Census:\t%d\n", s.Census)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	if s.Trips > 0 {
		_, _ = fmt.Fprintf(w, "Arc trips:\t%d\n", s.Trips)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
