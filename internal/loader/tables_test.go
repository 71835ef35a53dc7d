package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/flow"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeXLSX(t *testing.T, name string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.Save(path))
	return path
}

func matrixSpec(path string, s flow.Schedule) MatrixSpec {
	return MatrixSpec{Path: path, OriginColumn: "fromZone", DestinationColumn: "ToZone", Schedule: s}
}

func TestLoadMatrix(t *testing.T) {
	path := writeFile(t, "od.csv", "fromZone,ToZone,h8,h7\n101.0,250,1.5,\n250,101,0,0.2\n")

	m, err := LoadMatrix(context.Background(), matrixSpec(path, flow.AutoSchedule()))
	require.NoError(t, err)
	require.Len(t, m.Buckets, 2)
	assert.Equal(t, "07:00", m.Buckets[0].Label())
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "101", string(m.Rows[0].Origin))
	assert.Equal(t, []float64{0, 1.5}, m.Rows[0].Trips)
	assert.Equal(t, []float64{0.2, 0}, m.Rows[1].Trips)
	assert.Equal(t, 1, m.Rows[1].Index)
}

func TestLoadMatrix_HalfHourSchedule(t *testing.T) {
	header := "fromZone,ToZone"
	values := "1,2"
	for _, col := range []string{"h600", "h630", "h700", "h730"} {
		header += "," + col
		values += ",1"
	}
	path := writeFile(t, "od.csv", header+",note\n"+values+",x\n")

	m, err := LoadMatrix(context.Background(), matrixSpec(path, flow.HalfHourSchedule(6, 8)))
	require.NoError(t, err)
	assert.Len(t, m.Buckets, 4)

	_, err = LoadMatrix(context.Background(), matrixSpec(path, flow.HalfHourSchedule(6, 9)))
	var mb *flow.MalformedBucketError
	require.ErrorAs(t, err, &mb)
	assert.Equal(t, "h800", mb.Column)

	_, err = LoadMatrix(context.Background(), matrixSpec(path, flow.AutoSchedule()))
	require.ErrorAs(t, err, &mb)
	assert.Equal(t, "note", mb.Column)
}

func TestLoadMatrix_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing origin", "from,ToZone,h7\n1,2,1\n", `column "fromZone" not found`},
		{"bad count", "fromZone,ToZone,h7\n1,2,lots\n", `invalid trip count "lots"`},
		{"negative", "fromZone,ToZone,h7\n1,2,-1\n", "invalid trip count"},
		{"blank id", "fromZone,ToZone,h7\n,2,1\n", "blank zone id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "od.csv", tt.content)
			_, err := LoadMatrix(context.Background(), matrixSpec(path, flow.AutoSchedule()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMemberships(t *testing.T) {
	path := writeXLSX(t, "pop.xlsx", [][]string{
		{"TAZ_1270", "Local_Code", "Statistical_Zone"},
		{"1", "3000", "12,13"},
		{"1", "3000", "12, 13"},
		{"2", "3000", "12+3"},
		{"", "3000", "1"},
		{"3", "70", ""},
	})

	ms, err := LoadMemberships(context.Background(), MembershipSpec{
		Path: path, TAZColumn: "TAZ_1270", LocalityColumn: "Local_Code", StatZoneColumn: "Statistical_Zone",
	})
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []census.StatZone{12, 13}, ms[0].StatZones)
	assert.Equal(t, []census.StatZone{12}, ms[1].StatZones)
	assert.Empty(t, ms[2].StatZones)

	_, err = LoadMemberships(context.Background(), MembershipSpec{Path: path, TAZColumn: "TAZ", LocalityColumn: "Local_Code", StatZoneColumn: "Statistical_Zone"})
	assert.Error(t, err)
}

func TestLoadCensusTable(t *testing.T) {
	path := writeFile(t, "census.csv", `LocalityCode,StatArea,pop_density,age65_pcnt,pop_approx
3000,,"1,200",10,5000
3000,12,100,..,1000
3000,12+3,300,30,2000
,5,1,1,1
`)
	tbl, err := LoadCensusTable(context.Background(), CensusSpec{
		Path:           path,
		LocalityColumn: "LocalityCode",
		StatZoneColumn: "StatArea",
		Fields:         []string{"pop_density", "age65_pcnt", "size_avg", "pop_approx"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())

	locality := tbl.Lookup("3000", census.WholeLocality)
	require.Len(t, locality, 1)
	v, ok := locality[0].Value("pop_density")
	require.True(t, ok)
	assert.Equal(t, 1200.0, v)

	zone12 := tbl.Lookup("3000", 12)
	require.Len(t, zone12, 2)
	_, ok = zone12[0].Value("age65_pcnt")
	assert.False(t, ok)
	_, ok = zone12[0].Value("size_avg")
	assert.False(t, ok)

	assert.Equal(t, 8000.0, tbl.Sum("pop_approx"))
}
