package flow

import (
	"iter"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/zone"
)

// SelfLoopPolicy decides what happens to rows whose origin and destination are
// the same zone.
type SelfLoopPolicy string

const (
	KeepSelfLoops SelfLoopPolicy = "keep"
	DropSelfLoops SelfLoopPolicy = "drop"
)

// Resolver maps zone ids to display coordinates for one focus zone.
type Resolver interface {
	Contains(id zone.ID) bool
	Resolve(id zone.ID) (zone.Coord, error)
}

// Options controls arc expansion.
type Options struct {
	Direction Direction
	MinTrips  float64 // raw trip counts below this emit nothing
	Scale     float64 // multiplier applied before rounding
	Offset    float64 // latitude nudge in degrees separating inbound and outbound endpoints
	Day       time.Time
	SelfLoops SelfLoopPolicy
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Direction: To,
		MinTrips:  0.5,
		Scale:     2,
		Offset:    0.001,
		Day:       time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		SelfLoops: KeepSelfLoops,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Direction != To && o.Direction != From {
		return eris.Errorf("flow: invalid direction %q", o.Direction)
	}
	if o.MinTrips < 0 || math.IsNaN(o.MinTrips) {
		return eris.Errorf("flow: min trips must be non-negative, got %v", o.MinTrips)
	}
	if !(o.Scale > 0) {
		return eris.Errorf("flow: scale must be positive, got %v", o.Scale)
	}
	if !(o.Offset > 0) {
		return eris.Errorf("flow: offset must be positive, got %v", o.Offset)
	}
	switch o.SelfLoops {
	case "", KeepSelfLoops, DropSelfLoops:
	default:
		return eris.Errorf("flow: unknown self-loop policy %q", o.SelfLoops)
	}
	return nil
}

// ScaleTrips converts a raw average trip count into the emitted integer count.
// Halves round to even.
func ScaleTrips(raw, scale float64) int64 {
	return int64(math.RoundToEven(raw * scale))
}

// Expand yields the arcs for every matrix row matching the focus zone in
// opts.Direction, in row order and ascending bucket order. The sequence is
// lazy and can be ranged over repeatedly.
//
// Both directions nudge the origin south and the destination north by
// opts.Offset, so the focus endpoint sits north of its centroid for inbound
// arcs and south of it for outbound arcs and the two never coincide. A
// self-loop has the focus at both ends, so it is additionally shifted west by
// opts.Offset when inbound and east when outbound.
//
// Rows naming zones the resolver does not know are logged and skipped. Any
// error from Resolve ends the sequence.
func Expand(m *Matrix, focus zone.ID, opts Options, r Resolver) iter.Seq2[ArcRecord, error] {
	return func(yield func(ArcRecord, error) bool) {
		if err := opts.Validate(); err != nil {
			yield(ArcRecord{}, err)
			return
		}
		if m == nil || r == nil {
			yield(ArcRecord{}, eris.New("flow: expand requires a matrix and a resolver"))
			return
		}
		log := zap.L().With(zap.String("component", "flow.expand"), zap.String("direction", string(opts.Direction)))

		for _, row := range m.Rows {
			if !matches(row, focus, opts.Direction) {
				continue
			}
			if row.Origin == row.Destination && opts.SelfLoops == DropSelfLoops {
				continue
			}
			if !r.Contains(row.Origin) || !r.Contains(row.Destination) {
				log.Warn("flow: skipping row with unregistered zone",
					zap.Int("row", row.Index),
					zap.String("origin", string(row.Origin)),
					zap.String("destination", string(row.Destination)),
				)
				continue
			}

			from, err := r.Resolve(row.Origin)
			if err != nil {
				yield(ArcRecord{}, eris.Wrapf(err, "flow: row %d origin %s", row.Index, string(row.Origin)))
				return
			}
			to, err := r.Resolve(row.Destination)
			if err != nil {
				yield(ArcRecord{}, eris.Wrapf(err, "flow: row %d destination %s", row.Index, string(row.Destination)))
				return
			}
			from.Lat -= opts.Offset
			to.Lat += opts.Offset
			if row.Origin == row.Destination {
				// Both endpoints are the focus: shift the arc west for
				// inbound and east for outbound so the two never coincide.
				shift := opts.Offset
				if opts.Direction == To {
					shift = -shift
				}
				from.Lon += shift
				to.Lon += shift
			}

			for j, b := range m.Buckets {
				raw := row.Trips[j]
				if raw < opts.MinTrips {
					continue
				}
				arc := ArcRecord{
					FromLat:   from.Lat,
					FromLon:   from.Lon,
					ToLat:     to.Lat,
					ToLon:     to.Lon,
					Time:      opts.Day.Add(b.Offset()),
					Trips:     ScaleTrips(raw, opts.Scale),
					Hour:      b.Label(),
					Direction: opts.Direction,
					Row:       row.Index,
					Bucket:    j,
				}
				if !yield(arc, nil) {
					return
				}
			}
		}
	}
}

func matches(row Row, focus zone.ID, d Direction) bool {
	if d == To {
		return row.Destination == focus
	}
	return row.Origin == focus
}

// Collect drains a sequence, stopping at the first error.
func Collect(seq iter.Seq2[ArcRecord, error]) ([]ArcRecord, error) {
	var arcs []ArcRecord
	for arc, err := range seq {
		if err != nil {
			return nil, err
		}
		arcs = append(arcs, arc)
	}
	return arcs, nil
}
