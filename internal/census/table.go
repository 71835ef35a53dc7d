package census

import (
	"math"
	"sort"
)

// Record is one row of a demographic table. Fields absent from Values, or
// NaN, are undefined.
type Record struct {
	Locality string
	StatZone StatZone
	Values   map[string]float64
}

// Value returns the field value and whether it is defined.
func (r Record) Value(field string) (float64, bool) {
	v, ok := r.Values[field]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

type recordKey struct {
	locality string
	zone     StatZone
}

// Table is an immutable demographic table indexed by (locality, statistical
// zone).
type Table struct {
	records    []Record
	index      map[recordKey][]int
	localities []string
}

// NewTable indexes records. The slice is copied.
func NewTable(records []Record) *Table {
	t := &Table{
		records: append([]Record(nil), records...),
		index:   make(map[recordKey][]int, len(records)),
	}
	seen := make(map[string]struct{})
	for i, r := range t.records {
		k := recordKey{r.Locality, r.StatZone}
		t.index[k] = append(t.index[k], i)
		if _, ok := seen[r.Locality]; !ok {
			seen[r.Locality] = struct{}{}
			t.localities = append(t.localities, r.Locality)
		}
	}
	sort.Strings(t.localities)
	return t
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Lookup returns the records for one (locality, statistical zone) pair.
func (t *Table) Lookup(locality string, z StatZone) []Record {
	idx := t.index[recordKey{locality, z}]
	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = t.records[j]
	}
	return out
}

// Localities returns the distinct locality codes in sorted order.
func (t *Table) Localities() []string {
	return append([]string(nil), t.localities...)
}

// Sum adds the defined values of one field over every record.
func (t *Table) Sum(field string) float64 {
	var total float64
	for _, r := range t.records {
		if v, ok := r.Value(field); ok {
			total += v
		}
	}
	return total
}
