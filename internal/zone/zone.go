// Package zone models traffic analysis zones at two resolutions and resolves
// zone ids to display coordinates.
package zone

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// ID identifies a fine or coarse zone. IDs are compared as canonical strings.
type ID string

// ParseID canonicalizes a raw identifier as read from a shapefile, CSV or
// spreadsheet cell. Integer-valued decimal renderings ("101.0") collapse to
// their integer form so the same zone matches across sources.
func ParseID(raw string) ID {
	s := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return ID(strconv.FormatInt(int64(f), 10))
		}
	}
	return ID(s)
}

func (id ID) String() string { return string(id) }

// Resolution distinguishes fine zones from the coarse zones that aggregate them.
type Resolution string

const (
	Fine   Resolution = "fine"
	Coarse Resolution = "coarse"
)

// Zone is a polygon with an identifier. Fine zones carry their parent coarse
// zone; coarse zones have an empty Parent.
type Zone struct {
	ID        ID
	Parent    ID
	Geometry  *geom.MultiPolygon
	SourceCRS string
}

// Coord is a geographic coordinate in degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CentroidTable maps zone ids of one resolution to their centroid.
type CentroidTable struct {
	resolution Resolution
	coords     map[ID]Coord
}

// NewCentroidTable copies coords into an immutable table.
func NewCentroidTable(resolution Resolution, coords map[ID]Coord) CentroidTable {
	m := make(map[ID]Coord, len(coords))
	for id, c := range coords {
		m[id] = c
	}
	return CentroidTable{resolution: resolution, coords: m}
}

// Resolution reports which zone level the table covers.
func (t CentroidTable) Resolution() Resolution { return t.resolution }

// Lookup returns the centroid for id.
func (t CentroidTable) Lookup(id ID) (Coord, bool) {
	c, ok := t.coords[id]
	return c, ok
}

// Len returns the number of zones in the table.
func (t CentroidTable) Len() int { return len(t.coords) }

// IDs returns the table's zone ids in sorted order.
func (t CentroidTable) IDs() []ID {
	ids := make([]ID, 0, len(t.coords))
	for id := range t.coords {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// SortIDs orders ids numerically when both sides are integers, lexically otherwise.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}

// Less compares two ids, numerically when both parse as integers.
func Less(a, b ID) bool {
	ai, aErr := strconv.ParseInt(string(a), 10, 64)
	bi, bErr := strconv.ParseInt(string(b), 10, 64)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
