package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tazflow/internal/config"
	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/store"
	"github.com/sells-group/tazflow/internal/zone"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunArcs_Mixed(t *testing.T) {
	cfg := arcFixture(t)
	p := New(cfg, nil, identity{})

	res, err := p.RunArcs(context.Background(), "101")
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Equal(t, zone.ID("101"), res.Focus)
	require.Len(t, res.Arcs, 3)

	// Far origin collapses to its coarse centroid.
	far := res.Arcs[0]
	assert.Equal(t, flow.To, far.Direction)
	assert.InDelta(t, 11.0, far.FromLon, 1e-9)
	assert.InDelta(t, 0.499, far.FromLat, 1e-9)
	assert.InDelta(t, 0.5, far.ToLon, 1e-9)
	assert.InDelta(t, 0.501, far.ToLat, 1e-9)
	assert.Equal(t, int64(3), far.Trips)
	assert.Equal(t, "08:00", far.Hour)
	assert.Equal(t, "2019-01-01T08:00:00", far.Timestamp())

	// Nearby origin keeps its fine centroid.
	near := res.Arcs[1]
	assert.Equal(t, flow.To, near.Direction)
	assert.InDelta(t, 2.5, near.FromLon, 1e-9)
	assert.Equal(t, int64(2), near.Trips)
	assert.Equal(t, "09:00", near.Hour)

	out := res.Arcs[2]
	assert.Equal(t, flow.From, out.Direction)
	assert.InDelta(t, 0.499, out.FromLat, 1e-9)
	assert.InDelta(t, 11.0, out.ToLon, 1e-9)
	assert.Equal(t, int64(4), out.Trips)

	assert.Equal(t, 3, res.Summary.Arcs)
	assert.Equal(t, int64(9), res.Summary.Trips)

	require.Len(t, res.Files, 1)
	assert.Equal(t, "focus_101_kepler_animated_mixed.csv", filepath.Base(res.Files[0]))
	rows := readCSV(t, res.Files[0])
	require.Len(t, rows, 4)
	assert.Equal(t, arcColumns, rows[0])
	assert.Equal(t, []string{"2019-01-01T08:00:00", "3", "08:00", "to"}, rows[1][4:])
	assert.Equal(t, "from", rows[3][7])
}

func TestRunArcs_Flat(t *testing.T) {
	cfg := arcFixture(t)
	cfg.Flow.Mode = "flat"
	cfg.Geometry.CoarsePath = ""
	p := New(cfg, nil, identity{})

	res, err := p.RunArcs(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, res.Arcs, 3)

	// Every endpoint uses its own fine centroid.
	assert.InDelta(t, 10.5, res.Arcs[0].FromLon, 1e-9)
	assert.InDelta(t, 10.5, res.Arcs[2].ToLon, 1e-9)
	assert.Equal(t, "focus_101_kepler_arc_map.csv", filepath.Base(res.Files[0]))
}

func TestRunArcs_PerDirectionFiles(t *testing.T) {
	cfg := arcFixture(t)
	cfg.Flow.Combined = false
	p := New(cfg, nil, identity{})

	res, err := p.RunArcs(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "focus_101_to_auto.csv", filepath.Base(res.Files[0]))
	assert.Equal(t, "focus_101_from_auto.csv", filepath.Base(res.Files[1]))
	assert.Len(t, readCSV(t, res.Files[0]), 3)
	assert.Len(t, readCSV(t, res.Files[1]), 2)
}

func TestRunArcs_SingleDirection(t *testing.T) {
	cfg := arcFixture(t)
	cfg.Flow.Direction = "from"
	p := New(cfg, nil, identity{})

	res, err := p.RunArcs(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, res.Arcs, 1)
	assert.Equal(t, flow.From, res.Arcs[0].Direction)
}

func TestRunArcs_ArrivalMatrix(t *testing.T) {
	cfg := arcFixture(t)
	cfg.Flow.ArrivalMatrixPath = writeTestFile(t, t.TempDir(), "arrival.csv",
		"fromZone,ToZone,h8,h9\n101,201,0,3\n")
	p := New(cfg, nil, identity{})

	res, err := p.RunArcs(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, res.Arcs, 3)
	last := res.Arcs[2]
	assert.Equal(t, flow.From, last.Direction)
	assert.InDelta(t, 2.5, last.ToLon, 1e-9)
	assert.Equal(t, int64(6), last.Trips)
}

func TestRunArcs_UnknownFocus(t *testing.T) {
	cfg := arcFixture(t)
	p := New(cfg, nil, identity{})

	_, err := p.RunArcs(context.Background(), "999")
	require.Error(t, err)
	var uz *zone.UnknownZoneError
	assert.ErrorAs(t, err, &uz)
}

func TestRunArcs_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *config.FlowConfig)
		focus  string
	}{
		{name: "blank focus", focus: " "},
		{name: "bad direction", focus: "101", mutate: func(f *config.FlowConfig) { f.Direction = "sideways" }},
		{name: "bad schedule", focus: "101", mutate: func(f *config.FlowConfig) { f.Schedule = "weekly" }},
		{name: "bad day", focus: "101", mutate: func(f *config.FlowConfig) { f.RepresentativeDay = "tomorrow" }},
		{name: "missing matrix", focus: "101", mutate: func(f *config.FlowConfig) { f.MatrixPath = "/nonexistent/od.csv" }},
		{name: "bad scale", focus: "101", mutate: func(f *config.FlowConfig) { f.Scale = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := arcFixture(t)
			if tt.mutate != nil {
				tt.mutate(&cfg.Flow)
			}
			_, err := New(cfg, nil, identity{}).RunArcs(context.Background(), tt.focus)
			assert.Error(t, err)
		})
	}
}

func TestRunArcs_PersistsRun(t *testing.T) {
	cfg := arcFixture(t)
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	res, err := New(cfg, st, identity{}).RunArcs(ctx, "101")
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunArcs, run.Kind)
	assert.Equal(t, store.RunStatusComplete, run.Status)
	assert.Equal(t, "101", run.Focus)

	arcs, err := st.ListArcs(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, arcs, 3)

	fine, err := st.LoadCentroids(ctx, res.RunID, zone.Fine)
	require.NoError(t, err)
	assert.Equal(t, 4, fine.Len())
	coarse, err := st.LoadCentroids(ctx, res.RunID, zone.Coarse)
	require.NoError(t, err)
	assert.Equal(t, 3, coarse.Len())
}

func TestRunArcs_FailedRunIsRecorded(t *testing.T) {
	cfg := arcFixture(t)
	cfg.Flow.MatrixPath = "/nonexistent/od.csv"
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	_, err = New(cfg, st, identity{}).RunArcs(ctx, "101")
	require.Error(t, err)

	runs, err := st.ListRuns(ctx, store.RunFilter{Kind: store.RunArcs})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}
