package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/flow"
)

// arcColumns is the header of arc exports.
var arcColumns = []string{"fromLat", "fromLon", "toLat", "toLon", "time", "trips", "hour", "direction"}

// WriteArcs writes arcs as CSV.
func WriteArcs(w io.Writer, arcs []flow.ArcRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(arcColumns); err != nil {
		return eris.Wrap(err, "arc export: write header")
	}
	for _, a := range arcs {
		row := []string{
			formatCoord(a.FromLat),
			formatCoord(a.FromLon),
			formatCoord(a.ToLat),
			formatCoord(a.ToLon),
			a.Timestamp(),
			strconv.FormatInt(a.Trips, 10),
			a.Hour,
			string(a.Direction),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "arc export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "arc export: flush")
}

// ExportArcsCSV writes arcs to a CSV file.
func ExportArcsCSV(arcs []flow.ArcRecord, outputPath string) error {
	return writeFile(outputPath, func(w io.Writer) error { return WriteArcs(w, arcs) })
}

// WriteEstimates writes estimates as CSV: zone id, locality, statistical
// zones, then one column per field. Undefined values are left blank.
func WriteEstimates(w io.Writer, estimates []census.Estimate, fields []string) error {
	cw := csv.NewWriter(w)
	header := append([]string{"TAZ", "LocalityCode", "Statistical_Zone"}, fields...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "estimate export: write header")
	}
	for _, e := range estimates {
		row := make([]string, 0, len(header))
		row = append(row, e.TAZ.String(), e.Locality, census.FormatStatZones(e.StatZones))
		for _, f := range fields {
			v, ok := e.Value(f)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', 2, 64))
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "estimate export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "estimate export: flush")
}

// ExportEstimatesCSV writes estimates to a CSV file.
func ExportEstimatesCSV(estimates []census.Estimate, fields []string, outputPath string) error {
	return writeFile(outputPath, func(w io.Writer) error { return WriteEstimates(w, estimates, fields) })
}

func writeFile(outputPath string, write func(io.Writer) error) error {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "export: create dir")
		}
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
