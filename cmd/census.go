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
	censusMemberships string
	censusTable       string
	censusBounds      string
	censusFields      []string
	censusThreshold   float64
	censusWorkers     int
	censusOutput      string
)

var censusCmd = &cobra.Command{
	Use:   "census",
	Short: "Estimate demographics per traffic analysis zone",
	Long:  "Joins the census table onto zone memberships by statistical zone, falling back to locality totals, validates the estimates and writes them to CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		applyCensusFlags(cmd.Flags(), &cfg.Census, &cfg.Output)
		if err := cfg.Validate("census"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		res, err := pipeline.New(cfg, st, nil).RunCensus(ctx)
		if err != nil {
			return eris.Wrap(err, "census")
		}

		fmt.Fprintln(os.Stdout, res.File)
		fmt.Fprintf(os.Stderr, "%d zones: %d by statistical zone, %d by locality, %d unmatched\n",
			res.Summary.Estimates, res.Summary.FromStatZone, res.Summary.FromLocality, res.Summary.Unmatched)
		if !res.Report.OK() {
			fmt.Fprintln(os.Stderr, "validation reported findings; see log")
		}
		return nil
	},
}

// applyCensusFlags copies explicitly set flags over the loaded configuration.
func applyCensusFlags(fs *pflag.FlagSet, cc *config.CensusConfig, oc *config.OutputConfig) {
	if fs.Changed("memberships") {
		cc.MembershipPath = censusMemberships
	}
	if fs.Changed("table") {
		cc.TablePath = censusTable
	}
	if fs.Changed("bounds") {
		cc.BoundsPath = censusBounds
	}
	if fs.Changed("fields") {
		cc.Fields = censusFields
	}
	if fs.Changed("threshold") {
		cc.DiscrepancyThreshold = censusThreshold
	}
	if fs.Changed("workers") {
		cc.Workers = censusWorkers
	}
	if fs.Changed("output") {
		oc.Dir = censusOutput
	}
}

func bindCensusFlags(fs *pflag.FlagSet) {
	fs.StringVar(&censusMemberships, "memberships", "", "zone membership table (csv, tsv or xlsx)")
	fs.StringVar(&censusTable, "table", "", "census table (csv, tsv or xlsx)")
	fs.StringVar(&censusBounds, "bounds", "", "YAML file overriding validation bounds")
	fs.StringSliceVar(&censusFields, "fields", nil, "fields to estimate (default: the economic field set)")
	fs.Float64Var(&censusThreshold, "threshold", 0.10, "population discrepancy threshold")
	fs.IntVar(&censusWorkers, "workers", 4, "parallel estimation workers")
	fs.StringVarP(&censusOutput, "output", "o", ".", "output directory")
}

func init() {
	bindCensusFlags(censusCmd.Flags())

	rootCmd.AddCommand(censusCmd)
}
