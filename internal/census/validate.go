package census

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/zone"
)

// ValidationConfig controls Validate.
type ValidationConfig struct {
	Fields []string
	Bounds Bounds

	// PopulationField is summed over estimates and compared against the
	// reference: ReferenceTotal when set, otherwise ReferenceField summed over
	// the demographic table.
	PopulationField      string
	ReferenceField       string
	ReferenceTotal       *float64
	DiscrepancyThreshold float64
}

// DefaultValidationConfig returns the configuration used for EconomicFields.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		Fields:               EconomicFields,
		Bounds:               DefaultBounds(EconomicFields),
		PopulationField:      "pop_density",
		ReferenceField:       "pop_approx",
		DiscrepancyThreshold: 0.10,
	}
}

// OutOfRange is one estimate value outside its field bounds.
type OutOfRange struct {
	TAZ      zone.ID
	Locality string
	Field    string
	Value    float64
	Range    Range
}

// PopulationCheck compares aggregate population against a reference total.
type PopulationCheck struct {
	Field       string
	Estimated   float64
	Reference   float64
	Discrepancy float64 // relative, |estimated-reference| / reference
	Threshold   float64
	Flagged     bool
	Skipped     bool // reference total is zero
}

// Report collects validation findings. Nothing in it is fatal.
type Report struct {
	OutOfRange []OutOfRange
	Population PopulationCheck

	Zones          int
	ZonesEstimated int
	ZoneCoverage   float64

	Localities        int
	LocalitiesCovered int
	LocalityCoverage  float64

	// Missing counts estimates with an undefined value, per field. Fields with
	// no missing values are omitted.
	Missing map[string]int
}

// Validate checks estimates for out-of-range values, aggregate population
// drift and coverage. Estimates are not modified.
func Validate(estimates []Estimate, memberships []Membership, t *Table, cfg ValidationConfig) Report {
	r := Report{Missing: map[string]int{}}

	for _, est := range estimates {
		for _, f := range cfg.Fields {
			v, ok := est.Value(f)
			if !ok {
				r.Missing[f]++
				continue
			}
			if b, bounded := cfg.Bounds[f]; bounded && !b.Contains(v) {
				r.OutOfRange = append(r.OutOfRange, OutOfRange{
					TAZ: est.TAZ, Locality: est.Locality, Field: f, Value: v, Range: b,
				})
			}
		}
	}

	r.Population = populationCheck(estimates, t, cfg)

	zones := make(map[zone.ID]struct{}, len(memberships))
	for _, m := range memberships {
		zones[m.TAZ] = struct{}{}
	}
	estimated := make(map[zone.ID]struct{})
	covered := make(map[string]struct{})
	for _, est := range estimates {
		if est.Empty() {
			continue
		}
		if _, ok := zones[est.TAZ]; ok {
			estimated[est.TAZ] = struct{}{}
		}
		covered[est.Locality] = struct{}{}
	}
	r.Zones = len(zones)
	r.ZonesEstimated = len(estimated)
	r.ZoneCoverage = ratio(r.ZonesEstimated, r.Zones)

	for _, loc := range t.Localities() {
		r.Localities++
		if _, ok := covered[loc]; ok {
			r.LocalitiesCovered++
		}
	}
	r.LocalityCoverage = ratio(r.LocalitiesCovered, r.Localities)

	return r
}

func populationCheck(estimates []Estimate, t *Table, cfg ValidationConfig) PopulationCheck {
	pc := PopulationCheck{Field: cfg.PopulationField, Threshold: cfg.DiscrepancyThreshold}
	for _, est := range estimates {
		if v, ok := est.Value(cfg.PopulationField); ok {
			pc.Estimated += v
		}
	}
	if cfg.ReferenceTotal != nil {
		pc.Reference = *cfg.ReferenceTotal
	} else {
		pc.Reference = t.Sum(cfg.ReferenceField)
	}
	if pc.Reference == 0 {
		pc.Skipped = true
		return pc
	}
	pc.Discrepancy = math.Abs(pc.Estimated-pc.Reference) / math.Abs(pc.Reference)
	pc.Flagged = pc.Discrepancy > cfg.DiscrepancyThreshold
	return pc
}

// ratio is n/d, with an empty denominator counting as full coverage.
func ratio(n, d int) float64 {
	if d == 0 {
		return 1
	}
	return float64(n) / float64(d)
}

// OK reports whether the run produced no findings worth a warning.
func (r Report) OK() bool {
	return len(r.OutOfRange) == 0 && !r.Population.Flagged && r.ZoneCoverage == 1
}

// Log writes the report: findings at Warn, totals at Info.
func (r Report) Log(log *zap.Logger) {
	if len(r.Missing) > 0 {
		fields := make([]string, 0, len(r.Missing))
		for f := range r.Missing {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		zf := make([]zap.Field, 0, len(fields))
		for _, f := range fields {
			zf = append(zf, zap.Int(f, r.Missing[f]))
		}
		log.Info("census: fields with missing values", zf...)
	}

	for _, o := range r.OutOfRange {
		log.Warn("census: value out of range",
			zap.String("taz", string(o.TAZ)),
			zap.String("locality", o.Locality),
			zap.String("field", o.Field),
			zap.Float64("value", o.Value),
			zap.Float64("min", o.Range.Min),
			zap.Float64("max", o.Range.Max),
		)
	}

	pop := []zap.Field{
		zap.String("field", r.Population.Field),
		zap.Float64("estimated", r.Population.Estimated),
		zap.Float64("reference", r.Population.Reference),
		zap.Float64("discrepancy", r.Population.Discrepancy),
	}
	switch {
	case r.Population.Skipped:
		log.Warn("census: reference population is zero, reconciliation skipped", pop...)
	case r.Population.Flagged:
		log.Warn("census: large discrepancy in total population", pop...)
	default:
		log.Info("census: total population", pop...)
	}

	log.Info("census: coverage",
		zap.Int("zones", r.Zones),
		zap.Int("zones_estimated", r.ZonesEstimated),
		zap.Float64("zone_coverage", r.ZoneCoverage),
		zap.Int("localities", r.Localities),
		zap.Int("localities_covered", r.LocalitiesCovered),
		zap.Float64("locality_coverage", r.LocalityCoverage),
	)
}
