package flow

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tazflow/internal/zone"
)

// Row is one origin-destination pair with a trip count per bucket.
type Row struct {
	Index       int // position in the source table, for error reporting and ordering
	Origin      zone.ID
	Destination zone.ID
	Trips       []float64 // aligned with Matrix.Buckets
}

// Matrix is an OD matrix over a representative day.
type Matrix struct {
	Buckets []Bucket
	Rows    []Row
}

// NewMatrix validates rows against buckets. Buckets must be in ascending time
// order and every trip count must be a non-negative number.
func NewMatrix(buckets []Bucket, rows []Row) (*Matrix, error) {
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Offset() <= buckets[i-1].Offset() {
			return nil, eris.Errorf("flow: bucket %s is not after %s", buckets[i].Column, buckets[i-1].Column)
		}
	}
	for _, r := range rows {
		if len(r.Trips) != len(buckets) {
			return nil, eris.Errorf("flow: row %d has %d trip values for %d buckets", r.Index, len(r.Trips), len(buckets))
		}
		for j, v := range r.Trips {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, eris.Errorf("flow: row %d column %s: invalid trip count %v", r.Index, buckets[j].Column, v)
			}
		}
	}
	return &Matrix{Buckets: buckets, Rows: rows}, nil
}
