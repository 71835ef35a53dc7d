package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/tazflow/internal/config"
	"github.com/sells-group/tazflow/internal/pipeline"
)

var (
	arcsFocus         string
	arcsDirection     string
	arcsMode          string
	arcsSchedule      string
	arcsMatrix        string
	arcsArrivalMatrix string
	arcsMinTrips      float64
	arcsScale         float64
	arcsOffset        float64
	arcsSelfLoops     string
	arcsCombined      bool
	arcsWorkers       int
	arcsOutput        string
)

var arcsCmd = &cobra.Command{
	Use:   "arcs",
	Short: "Build flow-map arcs around a focus zone",
	Long:  "Expands the OD matrix into timestamped arc records for trips to and from the focus zone, using fine centroids near the focus and coarse centroids far from it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		applyArcFlags(cmd.Flags(), &cfg.Flow, &cfg.Output)
		if err := cfg.Validate("arcs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		res, err := pipeline.New(cfg, st, nil).RunArcs(ctx, cfg.Flow.Focus)
		if err != nil {
			return eris.Wrap(err, "arcs")
		}

		for _, f := range res.Files {
			fmt.Fprintln(os.Stdout, f)
		}
		fmt.Fprintf(os.Stderr, "%d arcs, %d trips\n", res.Summary.Arcs, res.Summary.Trips)
		return nil
	},
}

// applyArcFlags copies explicitly set flags over the loaded configuration.
func applyArcFlags(fs *pflag.FlagSet, fc *config.FlowConfig, oc *config.OutputConfig) {
	if fs.Changed("focus") {
		fc.Focus = arcsFocus
	}
	if fs.Changed("direction") {
		fc.Direction = arcsDirection
	}
	if fs.Changed("mode") {
		fc.Mode = arcsMode
	}
	if fs.Changed("schedule") {
		fc.Schedule = arcsSchedule
	}
	if fs.Changed("matrix") {
		fc.MatrixPath = arcsMatrix
	}
	if fs.Changed("arrival-matrix") {
		fc.ArrivalMatrixPath = arcsArrivalMatrix
	}
	if fs.Changed("min-trips") {
		fc.MinTrips = arcsMinTrips
	}
	if fs.Changed("scale") {
		fc.Scale = arcsScale
	}
	if fs.Changed("offset") {
		fc.Offset = arcsOffset
	}
	if fs.Changed("self-loops") {
		fc.SelfLoops = arcsSelfLoops
	}
	if fs.Changed("combined") {
		fc.Combined = arcsCombined
	}
	if fs.Changed("workers") {
		fc.Workers = arcsWorkers
	}
	if fs.Changed("output") {
		oc.Dir = arcsOutput
	}
}

func bindArcFlags(fs *pflag.FlagSet) {
	fs.StringVar(&arcsFocus, "focus", "", "focus zone id (required)")
	fs.StringVar(&arcsDirection, "direction", "both", "trips to check: to, from or both")
	fs.StringVar(&arcsMode, "mode", "mixed", "centroid mode: mixed or flat")
	fs.StringVar(&arcsSchedule, "schedule", "auto", "bucket schedule: auto, hourly or half-hourly")
	fs.StringVar(&arcsMatrix, "matrix", "", "OD matrix file (csv, tsv or xlsx)")
	fs.StringVar(&arcsArrivalMatrix, "arrival-matrix", "", "OD matrix used for the from direction")
	fs.Float64Var(&arcsMinTrips, "min-trips", 0.5, "minimum raw trip count per bucket")
	fs.Float64Var(&arcsScale, "scale", 2, "trip count multiplier")
	fs.Float64Var(&arcsOffset, "offset", 0.001, "latitude offset in degrees between inbound and outbound endpoints")
	fs.StringVar(&arcsSelfLoops, "self-loops", "keep", "self-loop rows: keep or drop")
	fs.BoolVar(&arcsCombined, "combined", true, "write both directions to one file")
	fs.IntVar(&arcsWorkers, "workers", 4, "parallel expansion workers")
	fs.StringVarP(&arcsOutput, "output", "o", ".", "output directory")
}

func init() {
	bindArcFlags(arcsCmd.Flags())
	_ = arcsCmd.MarkFlagRequired("focus")

	rootCmd.AddCommand(arcsCmd)
}
