package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tazflow/internal/config"
	"github.com/sells-group/tazflow/internal/spatial"
)

// identity is a reprojector that leaves coordinates unchanged, so fixture
// centroids can be checked by hand.
type identity struct{}

func (identity) Transform(_, _ string) (spatial.Transformer, error) {
	return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
}

type fixtureZone struct {
	id, parent             string
	minX, minY, maxX, maxY float64
}

// writeZones writes a polygon shapefile with TAZ_1270 and TAZ_33 attributes.
func writeZones(t *testing.T, dir, name string, zones []fixtureZone) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	w.SetFields([]shp.Field{
		shp.StringField("TAZ_1270", 16),
		shp.StringField("TAZ_33", 16),
	})
	for _, z := range zones {
		ring := []shp.Point{
			{X: z.minX, Y: z.minY}, {X: z.minX, Y: z.maxY}, {X: z.maxX, Y: z.maxY}, {X: z.maxX, Y: z.minY}, {X: z.minX, Y: z.minY},
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
		row := w.Write(&poly)
		w.WriteAttribute(int(row), 0, z.id)
		w.WriteAttribute(int(row), 1, z.parent)
	}
	w.Close()
	return path
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// arcFixture lays out three coarse zones, the first two adjacent, and one or
// two fine zones inside each.
func arcFixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	coarse := writeZones(t, dir, "coarse", []fixtureZone{
		{id: "x", parent: "1", minX: 0, minY: 0, maxX: 2, maxY: 1},
		{id: "x", parent: "2", minX: 2, minY: 0, maxX: 4, maxY: 1},
		{id: "x", parent: "3", minX: 10, minY: 0, maxX: 12, maxY: 1},
	})
	fine := writeZones(t, dir, "fine", []fixtureZone{
		{id: "101", parent: "1", minX: 0, minY: 0, maxX: 1, maxY: 1},
		{id: "102", parent: "1", minX: 1, minY: 0, maxX: 2, maxY: 1},
		{id: "201", parent: "2", minX: 2, minY: 0, maxX: 3, maxY: 1},
		{id: "301", parent: "3", minX: 10, minY: 0, maxX: 11, maxY: 1},
	})
	matrix := writeTestFile(t, dir, "od.csv",
		"fromZone,ToZone,h8,h9\n"+
			"301,101,1.5,0.2\n"+
			"201,101,0,1\n"+
			"101,301,2.0,0\n"+
			"102,201,5,5\n")

	return &config.Config{
		Geometry: config.GeometryConfig{
			FinePath:      fine,
			CoarsePath:    coarse,
			FineIDField:   "TAZ_1270",
			ParentField:   "TAZ_33",
			CoarseIDField: "TAZ_33",
			SourceCRS:     "EPSG:4326",
			PlanarCRS:     "EPSG:2039",
		},
		Flow: config.FlowConfig{
			MatrixPath:        matrix,
			OriginColumn:      "fromZone",
			DestinationColumn: "ToZone",
			Schedule:          "auto",
			Direction:         "both",
			MinTrips:          0.5,
			Scale:             2,
			Offset:            0.001,
			Mode:              "mixed",
			SelfLoops:         "keep",
			RepresentativeDay: "2019-01-01",
			Combined:          true,
			Workers:           2,
		},
		Output: config.OutputConfig{Dir: filepath.Join(dir, "out")},
	}
}

// censusFixture writes a membership table and a census table. Zone 101 maps
// to two statistical zones, 102 falls back to its locality row and 103 has
// no data.
func censusFixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	members := writeTestFile(t, dir, "pop.csv",
		"TAZ_1270,Local_Code,Statistical_Zone\n"+
			"101,3000,\"1,2\"\n"+
			"102,3000,\n"+
			"103,9999,\n"+
			"101,3000,\"1,2\"\n")
	table := writeTestFile(t, dir, "census.csv",
		"LocalityCode,StatArea,pop_density,age65_pcnt,pop_approx\n"+
			"3000,1,10,20,100\n"+
			"3000,2,20,40,100\n"+
			"3000,,30,150,300\n")

	return &config.Config{
		Census: config.CensusConfig{
			MembershipPath:       members,
			TablePath:            table,
			TAZColumn:            "TAZ_1270",
			LocalityColumn:       "Local_Code",
			StatZoneColumn:       "Statistical_Zone",
			TableLocalityColumn:  "LocalityCode",
			TableStatZoneColumn:  "StatArea",
			Fields:               []string{"pop_density", "age65_pcnt"},
			PopulationField:      "pop_density",
			ReferenceField:       "pop_approx",
			DiscrepancyThreshold: 0.10,
			Workers:              2,
		},
		Output: config.OutputConfig{Dir: filepath.Join(dir, "out")},
	}
}
