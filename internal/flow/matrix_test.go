package flow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatrix(t *testing.T) {
	buckets := []Bucket{{Column: "h7", Hour: 7}, {Column: "h8", Hour: 8}}

	m, err := NewMatrix(buckets, []Row{{Index: 0, Origin: "1", Destination: "2", Trips: []float64{1, 0}}})
	require.NoError(t, err)
	assert.Len(t, m.Rows, 1)

	tests := []struct {
		name    string
		buckets []Bucket
		trips   []float64
	}{
		{"short row", buckets, []float64{1}},
		{"negative", buckets, []float64{1, -1}},
		{"nan", buckets, []float64{math.NaN(), 0}},
		{"inf", buckets, []float64{math.Inf(1), 0}},
		{"unsorted buckets", []Bucket{buckets[1], buckets[0]}, []float64{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatrix(tt.buckets, []Row{{Index: 3, Trips: tt.trips}})
			assert.Error(t, err)
		})
	}
}
