package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testZone struct {
	id     string
	parent string
	rings  [][]shp.Point
}

// square returns a clockwise ring, the shapefile orientation for shells.
func square(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY},
	}
}

// reversed flips ring orientation.
func reversed(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

func writeShapefile(t *testing.T, name string, zones []testZone) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	w.SetFields([]shp.Field{
		shp.StringField("TAZ_1270", 16),
		shp.StringField("TAZ_33", 16),
	})
	for _, z := range zones {
		poly := shp.Polygon(*shp.NewPolyLine(z.rings))
		row := w.Write(&poly)
		w.WriteAttribute(int(row), 0, z.id)
		w.WriteAttribute(int(row), 1, z.parent)
	}
	w.Close()
	return path
}

func TestLoadZones(t *testing.T) {
	path := writeShapefile(t, "fine", []testZone{
		{id: "101", parent: "5", rings: [][]shp.Point{square(0, 0, 1, 1)}},
		{id: "102", parent: "5", rings: [][]shp.Point{square(1, 0, 2, 1)}},
	})

	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", ParentField: "TAZ_33", CRS: "EPSG:2039"})
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "101", string(zones[0].ID))
	assert.Equal(t, "5", string(zones[0].Parent))
	assert.Equal(t, "EPSG:2039", zones[0].SourceCRS)
	require.NotNil(t, zones[0].Geometry)
	assert.Equal(t, 1, zones[0].Geometry.NumPolygons())

	b := zones[1].Geometry.Bounds()
	assert.Equal(t, 1.0, b.Min(0))
	assert.Equal(t, 2.0, b.Max(0))
}

func TestLoadZones_FieldNamesAreCaseInsensitive(t *testing.T) {
	path := writeShapefile(t, "coarse", []testZone{{id: "5", rings: [][]shp.Point{square(0, 0, 2, 1)}}})
	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "taz_1270", CRS: "EPSG:2039"})
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Empty(t, zones[0].Parent)
}

func TestLoadZones_HolesAndParts(t *testing.T) {
	path := writeShapefile(t, "holes", []testZone{{
		id: "7",
		rings: [][]shp.Point{
			square(0, 0, 10, 10),
			reversed(square(2, 2, 4, 4)),
			square(20, 0, 21, 1),
		},
	}})
	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", CRS: "EPSG:2039"})
	require.NoError(t, err)
	require.Len(t, zones, 1)

	mp := zones[0].Geometry
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
}

func TestLoadZones_PrjSidecar(t *testing.T) {
	path := writeShapefile(t, "prj", []testZone{{id: "1", rings: [][]shp.Point{square(0, 0, 1, 1)}}})
	wkt := `PROJCS["Israel_TM_Grid",GEOGCS["GCS_Israel",DATUM["D_Israel",SPHEROID["GRS_1980",6378137.0,298.257222101]]]]`
	require.NoError(t, os.WriteFile(path[:len(path)-4]+".prj", []byte(wkt+"\n"), 0o644))

	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270"})
	require.NoError(t, err)
	assert.Equal(t, wkt, zones[0].SourceCRS)

	zones, err = LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", CRS: "EPSG:4326"})
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", zones[0].SourceCRS)
}

func TestLoadZones_NoPrj(t *testing.T) {
	path := writeShapefile(t, "noprj", []testZone{{id: "1", rings: [][]shp.Point{square(0, 0, 1, 1)}}})
	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270"})
	require.NoError(t, err)
	assert.Empty(t, zones[0].SourceCRS)
}

func TestLoadZones_SkipsBlankIDs(t *testing.T) {
	path := writeShapefile(t, "blank", []testZone{
		{id: "", rings: [][]shp.Point{square(0, 0, 1, 1)}},
		{id: "2", rings: [][]shp.Point{square(1, 0, 2, 1)}},
	})
	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", CRS: "EPSG:2039"})
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "2", string(zones[0].ID))
}

func TestLoadZones_Errors(t *testing.T) {
	path := writeShapefile(t, "dup", []testZone{
		{id: "1", rings: [][]shp.Point{square(0, 0, 1, 1)}},
		{id: "1", rings: [][]shp.Point{square(1, 0, 2, 1)}},
	})

	_, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", CRS: "EPSG:2039"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone 1 appears in records")

	_, err = LoadZones(ZoneSpec{Path: path, IDField: "ZONE", CRS: "EPSG:2039"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `id field "ZONE" not found`)

	_, err = LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", ParentField: "PARENT", CRS: "EPSG:2039"})
	assert.Error(t, err)

	_, err = LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", CRS: "EPSG:2039", Encoding: "klingon"})
	assert.Error(t, err)

	_, err = LoadZones(ZoneSpec{Path: filepath.Join(t.TempDir(), "missing.shp"), IDField: "TAZ_1270", CRS: "EPSG:2039"})
	assert.Error(t, err)
}

func TestLoadZones_Encoding(t *testing.T) {
	path := writeShapefile(t, "enc", []testZone{{id: "101", parent: "5", rings: [][]shp.Point{square(0, 0, 1, 1)}}})
	zones, err := LoadZones(ZoneSpec{Path: path, IDField: "TAZ_1270", ParentField: "TAZ_33", CRS: "EPSG:2039", Encoding: "windows-1255"})
	require.NoError(t, err)
	assert.Equal(t, "101", string(zones[0].ID))
}

func TestPolygonToMultiPolygon_Degenerate(t *testing.T) {
	assert.Nil(t, polygonToMultiPolygon(nil))

	tiny := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}}))
	assert.Nil(t, polygonToMultiPolygon(&tiny))

	// A lone counter-clockwise ring is still a shell.
	ccw := shp.Polygon(*shp.NewPolyLine([][]shp.Point{reversed(square(0, 0, 1, 1))}))
	mp := polygonToMultiPolygon(&ccw)
	require.NotNil(t, mp)
	assert.Equal(t, 1, mp.NumPolygons())
}
