package census

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tazflow/internal/zone"
)

// Source records which level of the demographic table an estimate came from.
type Source string

const (
	SourceStatZone Source = "stat_zone"
	SourceLocality Source = "locality"
	SourceNone     Source = "none"
)

// Estimate is the demographic profile attributed to one fine zone.
type Estimate struct {
	TAZ       zone.ID
	Locality  string
	StatZones []StatZone
	Raw       string
	Values    map[string]float64 // defined fields only
	Source    Source
}

// Value returns the field value and whether it is defined.
func (e Estimate) Value(field string) (float64, bool) {
	v, ok := e.Values[field]
	return v, ok
}

// Empty reports whether no field is defined.
func (e Estimate) Empty() bool { return len(e.Values) == 0 }

// Engine attributes demographic records to fine zones: the mean of the
// matching statistical-zone records when any exist, otherwise the mean of the
// locality-level records, otherwise nothing.
type Engine struct {
	Fields []string
}

// NewEngine returns an engine over fields, or EconomicFields when empty.
func NewEngine(fields []string) *Engine {
	if len(fields) == 0 {
		fields = EconomicFields
	}
	return &Engine{Fields: append([]string(nil), fields...)}
}

// Estimate builds the estimate for one membership.
func (e *Engine) Estimate(m Membership, t *Table) Estimate {
	est := Estimate{
		TAZ:       m.TAZ,
		Locality:  m.Locality,
		StatZones: append([]StatZone(nil), m.StatZones...),
		Raw:       m.Raw,
		Values:    map[string]float64{},
		Source:    SourceNone,
	}

	var matches []Record
	seen := make(map[StatZone]struct{}, len(m.StatZones))
	for _, z := range m.StatZones {
		if !z.Valid() {
			continue
		}
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		matches = append(matches, t.Lookup(m.Locality, z)...)
	}
	if len(matches) > 0 {
		est.Source = SourceStatZone
	} else if matches = t.Lookup(m.Locality, WholeLocality); len(matches) > 0 {
		est.Source = SourceLocality
	} else {
		return est
	}

	for _, f := range e.Fields {
		if v, ok := mean(matches, f); ok {
			est.Values[f] = v
		}
	}
	return est
}

func mean(records []Record, field string) (float64, bool) {
	var sum float64
	var n int
	for _, r := range records {
		if v, ok := r.Value(field); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), false
	}
	return sum / float64(n), true
}

// BuildEstimates returns one estimate per membership, in membership order.
func (e *Engine) BuildEstimates(ms []Membership, t *Table) []Estimate {
	out := make([]Estimate, len(ms))
	for i, m := range ms {
		out[i] = e.Estimate(m, t)
	}
	return out
}

// BuildEstimatesParallel is BuildEstimates spread over workers goroutines.
// The result keeps membership order.
func (e *Engine) BuildEstimatesParallel(ctx context.Context, ms []Membership, t *Table, workers int) ([]Estimate, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Estimate, len(ms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range ms {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "census: estimation cancelled")
			}
			out[i] = e.Estimate(ms[i], t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "census: estimation cancelled")
	}
	return out, nil
}

// Round returns copies of estimates with every value rounded to places
// decimals, halves to even.
func Round(estimates []Estimate, places int) []Estimate {
	p := math.Pow(10, float64(places))
	out := make([]Estimate, len(estimates))
	for i, est := range estimates {
		c := est
		c.StatZones = append([]StatZone(nil), est.StatZones...)
		c.Values = make(map[string]float64, len(est.Values))
		for f, v := range est.Values {
			c.Values[f] = math.RoundToEven(v*p) / p
		}
		out[i] = c
	}
	return out
}
