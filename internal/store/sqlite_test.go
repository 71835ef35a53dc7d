package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/zone"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, RunArcs, "101", map[string]any{"direction": "both", "scale": 2})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, st.CompleteRun(ctx, run.ID, map[string]int{"arcs": 12}))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunArcs, got.Kind)
	assert.Equal(t, "101", got.Focus)
	assert.Equal(t, RunStatusComplete, got.Status)

	var summary map[string]int
	require.NoError(t, json.Unmarshal(got.Summary, &summary))
	assert.Equal(t, 12, summary["arcs"])

	var params map[string]any
	require.NoError(t, json.Unmarshal(got.Params, &params))
	assert.Equal(t, "both", params["direction"])
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, RunCensus, "", nil)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("unknown fine zone \"9\"")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "unknown fine zone")
}

func TestSQLite_RunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")

	err = st.CompleteRun(ctx, "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, RunArcs, "101", nil)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, RunArcs, "102", nil)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, RunCensus, "", nil)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, a.ID, nil))

	runs, err := st.ListRuns(ctx, RunFilter{Kind: RunArcs})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = st.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a.ID, runs[0].ID)

	runs, err = st.ListRuns(ctx, RunFilter{Focus: "102"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_Arcs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, RunArcs, "10", nil)
	require.NoError(t, err)

	day := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	arcs := []flow.ArcRecord{
		{FromLat: 31.999, FromLon: 34.8, ToLat: 32.001, ToLon: 34.8, Time: day.Add(7 * time.Hour), Trips: 6, Hour: "07:00", Direction: flow.To, Row: 0, Bucket: 0},
		{FromLat: 31.999, FromLon: 34.8, ToLat: 31.501, ToLon: 35, Time: day.Add(7*time.Hour + 30*time.Minute), Trips: 1, Hour: "07:30", Direction: flow.From, Row: 4, Bucket: 1},
	}
	require.NoError(t, st.SaveArcs(ctx, run.ID, arcs[:1]))
	require.NoError(t, st.SaveArcs(ctx, run.ID, arcs[1:]))

	got, err := st.ListArcs(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, arcs, got)

	empty, err := st.ListArcs(ctx, "other-run")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_Estimates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, RunCensus, "", nil)
	require.NoError(t, err)

	est := []census.Estimate{
		{TAZ: "1", Locality: "3000", StatZones: []census.StatZone{12, 13}, Raw: "12,13", Values: map[string]float64{"pop_density": 200.5}, Source: census.SourceStatZone},
		{TAZ: "2", Locality: "70", Raw: "", Values: map[string]float64{}, Source: census.SourceNone},
	}
	require.NoError(t, st.SaveEstimates(ctx, run.ID, est))

	got, err := st.ListEstimates(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, est, got)
}

func TestSQLite_Zones(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, RunArcs, "101", nil)
	require.NoError(t, err)

	square := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}})
	zones := []zone.Zone{
		{ID: "101", Parent: "5", Geometry: square, SourceCRS: "EPSG:2039"},
		{ID: "102", Parent: "5", Geometry: square, SourceCRS: "EPSG:2039"},
	}
	table := zone.NewCentroidTable(zone.Fine, map[zone.ID]zone.Coord{"101": {Lat: 32, Lon: 35}})
	require.NoError(t, st.SaveZones(ctx, run.ID, zones, table))

	got, err := st.LoadCentroids(ctx, run.ID, zone.Fine)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	c, ok := got.Lookup("101")
	require.True(t, ok)
	assert.Equal(t, zone.Coord{Lat: 32, Lon: 35}, c)

	coarse, err := st.LoadCentroids(ctx, run.ID, zone.Coarse)
	require.NoError(t, err)
	assert.Equal(t, 0, coarse.Len())

	var blob []byte
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT geometry FROM zones WHERE id = '102'`).Scan(&blob))
	assert.NotEmpty(t, blob)
}
