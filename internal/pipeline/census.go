package pipeline

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/loader"
	"github.com/sells-group/tazflow/internal/store"
)

// EstimateFile is the census output file name inside the output dir.
const EstimateFile = "taz_census_estimate.csv"

// CensusParams is the parameter set recorded with a census run.
type CensusParams struct {
	MembershipPath string   `json:"membership_path"`
	TablePath      string   `json:"table_path"`
	Fields         []string `json:"fields"`
	BoundsPath     string   `json:"bounds_path,omitempty"`
}

// CensusSummary is the run summary stored for a census run.
type CensusSummary struct {
	Estimates        int            `json:"estimates"`
	FromStatZone     int            `json:"from_stat_zone"`
	FromLocality     int            `json:"from_locality"`
	Unmatched        int            `json:"unmatched"`
	OutOfRange       int            `json:"out_of_range"`
	PopulationFlag   bool           `json:"population_flagged"`
	ZoneCoverage     float64        `json:"zone_coverage"`
	LocalityCoverage float64        `json:"locality_coverage"`
	Missing          map[string]int `json:"missing,omitempty"`
}

// CensusResult is the outcome of a census run.
type CensusResult struct {
	RunID     string
	Estimates []census.Estimate // rounded to two decimals
	Report    census.Report
	Summary   CensusSummary
	File      string
}

// RunCensus joins the demographic table onto zone memberships, validates the
// estimates and writes them out.
func (p *Pipeline) RunCensus(ctx context.Context) (*CensusResult, error) {
	cc := p.cfg.Census
	log := zap.L().With(zap.String("component", "pipeline.census"))

	fields := cc.Fields
	if len(fields) == 0 {
		fields = census.EconomicFields
	}
	params := CensusParams{
		MembershipPath: cc.MembershipPath,
		TablePath:      cc.TablePath,
		Fields:         fields,
		BoundsPath:     cc.BoundsPath,
	}

	run, err := p.startRun(ctx, store.RunCensus, "", params, log)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	result, err := p.runCensus(ctx, fields, run, log)
	if err != nil {
		run.fail(ctx, err)
		return nil, err
	}
	result.RunID = run.RunID()
	run.complete(ctx, result.Summary)
	return result, nil
}

func (p *Pipeline) runCensus(ctx context.Context, fields []string, run *runTracker, log *zap.Logger) (*CensusResult, error) {
	cc := p.cfg.Census

	bounds, err := census.LoadBounds(cc.BoundsPath, fields)
	if err != nil {
		return nil, err
	}

	memberships, err := loader.LoadMemberships(ctx, loader.MembershipSpec{
		Path:           cc.MembershipPath,
		TAZColumn:      cc.TAZColumn,
		LocalityColumn: cc.LocalityColumn,
		StatZoneColumn: cc.StatZoneColumn,
	})
	if err != nil {
		return nil, err
	}

	tableFields := slices.Clone(fields)
	if cc.ReferenceField != "" && !slices.Contains(tableFields, cc.ReferenceField) {
		tableFields = append(tableFields, cc.ReferenceField)
	}
	table, err := loader.LoadCensusTable(ctx, loader.CensusSpec{
		Path:           cc.TablePath,
		LocalityColumn: cc.TableLocalityColumn,
		StatZoneColumn: cc.TableStatZoneColumn,
		Fields:         tableFields,
	})
	if err != nil {
		return nil, err
	}

	engine := census.NewEngine(fields)
	estimates, err := engine.BuildEstimatesParallel(ctx, memberships, table, cc.Workers)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build estimates")
	}

	vcfg := census.ValidationConfig{
		Fields:               fields,
		Bounds:               bounds,
		PopulationField:      cc.PopulationField,
		ReferenceField:       cc.ReferenceField,
		DiscrepancyThreshold: cc.DiscrepancyThreshold,
	}
	if cc.ReferenceTotal > 0 {
		total := cc.ReferenceTotal
		vcfg.ReferenceTotal = &total
	}
	report := census.Validate(estimates, memberships, table, vcfg)
	report.Log(log)

	rounded := census.Round(estimates, 2)
	path := filepath.Join(p.cfg.Output.Dir, EstimateFile)
	if err := ExportEstimatesCSV(rounded, fields, path); err != nil {
		return nil, err
	}

	summary := summarizeCensus(rounded, report)
	log.Info("pipeline: census estimates written",
		zap.String("path", path),
		zap.Int("estimates", summary.Estimates),
		zap.Int("from_stat_zone", summary.FromStatZone),
		zap.Int("from_locality", summary.FromLocality),
		zap.Int("unmatched", summary.Unmatched),
	)

	if run.enabled() {
		if err := p.store.SaveEstimates(ctx, run.RunID(), rounded); err != nil {
			return nil, eris.Wrap(err, "pipeline: save estimates")
		}
	}

	return &CensusResult{
		Estimates: rounded,
		Report:    report,
		Summary:   summary,
		File:      path,
	}, nil
}

func summarizeCensus(estimates []census.Estimate, r census.Report) CensusSummary {
	s := CensusSummary{
		Estimates:        len(estimates),
		OutOfRange:       len(r.OutOfRange),
		PopulationFlag:   r.Population.Flagged,
		ZoneCoverage:     r.ZoneCoverage,
		LocalityCoverage: r.LocalityCoverage,
		Missing:          r.Missing,
	}
	for _, e := range estimates {
		switch e.Source {
		case census.SourceStatZone:
			s.FromStatZone++
		case census.SourceLocality:
			s.FromLocality++
		default:
			s.Unmatched++
		}
	}
	return s
}
