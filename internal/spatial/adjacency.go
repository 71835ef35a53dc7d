package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/sells-group/tazflow/internal/zone"
)

// AdjacencyIndex records which coarse zones touch. Two zones touch when their
// boundaries share at least one point and their interiors do not overlap.
// Every zone is adjacent to itself.
type AdjacencyIndex struct {
	adj map[zone.ID][]zone.ID
}

type segment struct {
	a, b                   geom.Coord
	minX, minY, maxX, maxY float64
}

type outline struct {
	id       zone.ID
	bounds   *geom.Bounds
	shape    *geom.MultiPolygon
	vertices map[[2]float64]struct{}
	segments []segment
}

// NewAdjacencyIndex compares every pair of coarse zones. Pairs are tested once,
// so the relation is symmetric by construction.
func NewAdjacencyIndex(zones []zone.Zone) (*AdjacencyIndex, error) {
	outlines := make([]outline, 0, len(zones))
	idx := &AdjacencyIndex{adj: make(map[zone.ID][]zone.ID, len(zones))}

	for _, z := range zones {
		if _, dup := idx.adj[z.ID]; dup {
			return nil, eris.Errorf("spatial: duplicate coarse zone %q", string(z.ID))
		}
		if z.Geometry == nil || z.Geometry.Empty() {
			return nil, &zone.UnknownZoneError{ID: z.ID, Role: "coarse", Detail: "no geometry"}
		}
		idx.adj[z.ID] = []zone.ID{z.ID}
		outlines = append(outlines, newOutline(z))
	}

	for i := range outlines {
		for j := i + 1; j < len(outlines); j++ {
			if touches(&outlines[i], &outlines[j]) {
				a, b := outlines[i].id, outlines[j].id
				idx.adj[a] = append(idx.adj[a], b)
				idx.adj[b] = append(idx.adj[b], a)
			}
		}
	}
	for id := range idx.adj {
		zone.SortIDs(idx.adj[id])
	}
	return idx, nil
}

// AdjacentCoarseZones returns the zones touching id, id included, sorted.
func (a *AdjacencyIndex) AdjacentCoarseZones(id zone.ID) ([]zone.ID, error) {
	adj, ok := a.adj[id]
	if !ok {
		return nil, &zone.UnknownZoneError{ID: id, Role: "coarse"}
	}
	out := make([]zone.ID, len(adj))
	copy(out, adj)
	return out, nil
}

// Touches reports whether coarse zones id1 and id2 are adjacent.
func (a *AdjacencyIndex) Touches(id1, id2 zone.ID) bool {
	for _, id := range a.adj[id1] {
		if id == id2 {
			return true
		}
	}
	return false
}

// Len returns the number of indexed coarse zones.
func (a *AdjacencyIndex) Len() int { return len(a.adj) }

func newOutline(z zone.Zone) outline {
	mp := z.Geometry
	o := outline{
		id:       z.ID,
		bounds:   mp.Bounds(),
		shape:    mp,
		vertices: make(map[[2]float64]struct{}),
	}
	flat, stride := mp.FlatCoords(), mp.Stride()
	offset := 0
	for _, ends := range mp.Endss() {
		for _, end := range ends {
			for i := offset; i < end; i += stride {
				o.vertices[[2]float64{flat[i], flat[i+1]}] = struct{}{}
				if i+stride < end {
					o.segments = append(o.segments, newSegment(flat[i], flat[i+1], flat[i+stride], flat[i+stride+1]))
				}
			}
			offset = end
		}
	}
	return o
}

func newSegment(x0, y0, x1, y1 float64) segment {
	return segment{
		a: geom.Coord{x0, y0}, b: geom.Coord{x1, y1},
		minX: min(x0, x1), minY: min(y0, y1),
		maxX: max(x0, x1), maxY: max(y0, y1),
	}
}

// touches reports whether p and q share boundary points without their
// interiors overlapping. A proper crossing of two boundary segments, or a
// vertex or edge midpoint of one zone strictly inside the other, means the
// zones overlap and so do not touch.
func touches(p, q *outline) bool {
	if !p.bounds.Overlaps(geom.XY, q.bounds) {
		return false
	}

	minX := max(p.bounds.Min(0), q.bounds.Min(0))
	minY := max(p.bounds.Min(1), q.bounds.Min(1))
	maxX := min(p.bounds.Max(0), q.bounds.Max(0))
	maxY := min(p.bounds.Max(1), q.bounds.Max(1))
	within := func(s segment) bool {
		return s.maxX >= minX && s.minX <= maxX && s.maxY >= minY && s.minY <= maxY
	}

	var ps, qs []segment
	for _, s := range p.segments {
		if within(s) {
			ps = append(ps, s)
		}
	}
	for _, s := range q.segments {
		if within(s) {
			qs = append(qs, s)
		}
	}

	if overlapsInterior(ps, q) || overlapsInterior(qs, p) {
		return false
	}

	shared := false
	small, large := p, q
	if len(small.vertices) > len(large.vertices) {
		small, large = large, small
	}
	for v := range small.vertices {
		if _, ok := large.vertices[v]; ok {
			shared = true
			break
		}
	}

	strategy := lineintersector.RobustLineIntersector{}
	for _, s := range ps {
		for _, t := range qs {
			if s.maxX < t.minX || t.maxX < s.minX || s.maxY < t.minY || t.maxY < s.minY {
				continue
			}
			if crosses(s, t) {
				return false
			}
			if shared {
				continue
			}
			res := lineintersector.LineIntersectsLine(strategy, s.a, s.b, t.a, t.b)
			if res.HasIntersection() {
				shared = true
			}
		}
	}
	return shared
}

// crosses reports a proper intersection: each segment has the other's
// endpoints strictly on opposite sides.
func crosses(s, t segment) bool {
	o1 := xy.OrientationIndex(s.a, s.b, t.a)
	o2 := xy.OrientationIndex(s.a, s.b, t.b)
	o3 := xy.OrientationIndex(t.a, t.b, s.a)
	o4 := xy.OrientationIndex(t.a, t.b, s.b)
	return int(o1)*int(o2) < 0 && int(o3)*int(o4) < 0
}

// overlapsInterior reports whether any segment endpoint or midpoint lies
// strictly inside o.
func overlapsInterior(segments []segment, o *outline) bool {
	for _, s := range segments {
		mid := geom.Coord{(s.a[0] + s.b[0]) / 2, (s.a[1] + s.b[1]) / 2}
		for _, c := range []geom.Coord{s.a, s.b, mid} {
			if o.interior(c) {
				return true
			}
		}
	}
	return false
}

// interior reports whether c lies strictly inside a polygon of o and outside
// its holes.
func (o *outline) interior(c geom.Coord) bool {
	for i := 0; i < o.shape.NumPolygons(); i++ {
		poly := o.shape.Polygon(i)
		if xy.LocatePointInRing(o.shape.Layout(), c, poly.LinearRing(0).FlatCoords()) != location.Interior {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			if xy.LocatePointInRing(o.shape.Layout(), c, poly.LinearRing(j).FlatCoords()) != location.Exterior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
