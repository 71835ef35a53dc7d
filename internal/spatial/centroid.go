package spatial

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/tazflow/internal/zone"
)

// ResolveCentroids builds the centroid table for one resolution level. Each
// polygon is reprojected into the planar frame, its area centroid taken
// there, and the centroid reprojected back to WGS84. Taking the centroid in
// raw degrees would skew it.
func ResolveCentroids(zones []zone.Zone, res zone.Resolution, planarCRS string, rp Reprojector) (zone.CentroidTable, error) {
	if rp == nil {
		return zone.CentroidTable{}, eris.New("spatial: nil reprojector")
	}
	toGeographic, err := rp.Transform(planarCRS, WGS84)
	if err != nil {
		return zone.CentroidTable{}, eris.Wrapf(err, "spatial: planar frame %s", planarCRS)
	}

	toPlanar := make(map[string]Transformer)
	coords := make(map[zone.ID]zone.Coord, len(zones))

	for _, z := range zones {
		if _, dup := coords[z.ID]; dup {
			return zone.CentroidTable{}, eris.Errorf("spatial: duplicate %s zone %q", res, string(z.ID))
		}
		if z.Geometry == nil || z.Geometry.Empty() {
			return zone.CentroidTable{}, &zone.UnknownZoneError{ID: z.ID, Role: string(res), Detail: "no geometry"}
		}

		fwd, ok := toPlanar[z.SourceCRS]
		if !ok {
			fwd, err = rp.Transform(z.SourceCRS, planarCRS)
			if err != nil {
				return zone.CentroidTable{}, eris.Wrapf(err, "spatial: source frame of zone %s", string(z.ID))
			}
			toPlanar[z.SourceCRS] = fwd
		}

		planar, err := reprojectMultiPolygon(z.Geometry, fwd)
		if err != nil {
			return zone.CentroidTable{}, eris.Wrapf(err, "spatial: reproject zone %s", string(z.ID))
		}
		c, err := xy.Centroid(planar)
		if err != nil {
			return zone.CentroidTable{}, eris.Wrapf(err, "spatial: centroid of zone %s", string(z.ID))
		}
		lon, lat, err := toGeographic(c.X(), c.Y())
		if err != nil {
			return zone.CentroidTable{}, eris.Wrapf(err, "spatial: unproject centroid of zone %s", string(z.ID))
		}
		if math.IsNaN(lat) || math.IsNaN(lon) {
			return zone.CentroidTable{}, eris.Errorf("spatial: degenerate centroid for zone %s", string(z.ID))
		}
		coords[z.ID] = zone.Coord{Lat: lat, Lon: lon}
	}

	return zone.NewCentroidTable(res, coords), nil
}

// reprojectMultiPolygon returns a copy of mp with every XY pair passed
// through t. Extra dimensions are carried over unchanged.
func reprojectMultiPolygon(mp *geom.MultiPolygon, t Transformer) (*geom.MultiPolygon, error) {
	stride := mp.Stride()
	src := mp.FlatCoords()
	flat := make([]float64, len(src))
	copy(flat, src)
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t(flat[i], flat[i+1])
		if err != nil {
			return nil, err
		}
		flat[i], flat[i+1] = x, y
	}
	return geom.NewMultiPolygonFlat(mp.Layout(), flat, mp.Endss()), nil
}
