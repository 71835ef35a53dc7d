package loader

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/fetcher"
	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/zone"
)

// MatrixSpec describes an OD matrix file.
type MatrixSpec struct {
	Path              string
	OriginColumn      string
	DestinationColumn string
	Schedule          flow.Schedule
}

// LoadMatrix reads an OD matrix. Every column other than the two id columns
// is matched against the schedule. Blank trip cells count as zero.
func LoadMatrix(ctx context.Context, spec MatrixSpec) (*flow.Matrix, error) {
	tbl, err := fetcher.ReadTable(ctx, spec.Path, fetcher.TableOptions{})
	if err != nil {
		return nil, err
	}
	oi, err := tbl.Index(spec.OriginColumn)
	if err != nil {
		return nil, eris.Wrap(err, "loader: od matrix")
	}
	di, err := tbl.Index(spec.DestinationColumn)
	if err != nil {
		return nil, eris.Wrap(err, "loader: od matrix")
	}

	var others []string
	var otherIdx []int
	for i, h := range tbl.Header {
		if i == oi || i == di || h == "" {
			continue
		}
		others = append(others, h)
		otherIdx = append(otherIdx, i)
	}
	buckets, cols, err := spec.Schedule.Match(others)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: %s", spec.Path)
	}

	rows := make([]flow.Row, 0, len(tbl.Rows))
	for n, rec := range tbl.Rows {
		row := flow.Row{
			Index:       n,
			Origin:      zone.ParseID(fetcher.Cell(rec, oi)),
			Destination: zone.ParseID(fetcher.Cell(rec, di)),
			Trips:       make([]float64, len(buckets)),
		}
		if row.Origin == "" || row.Destination == "" {
			return nil, eris.Errorf("loader: %s: row %d has a blank zone id", spec.Path, n)
		}
		for j, b := range buckets {
			raw := fetcher.Cell(rec, otherIdx[cols[j]])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Errorf("loader: %s: row %d (%s→%s) column %s: invalid trip count %q",
					spec.Path, n, string(row.Origin), string(row.Destination), b.Column, raw)
			}
			row.Trips[j] = v
		}
		rows = append(rows, row)
	}

	m, err := flow.NewMatrix(buckets, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: %s", spec.Path)
	}
	zap.L().Info("loader: od matrix loaded",
		zap.String("path", spec.Path),
		zap.String("schedule", spec.Schedule.Name()),
		zap.Int("rows", len(rows)),
		zap.Int("buckets", len(buckets)),
	)
	return m, nil
}
