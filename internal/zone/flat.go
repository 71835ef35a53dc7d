package zone

// FlatResolver is the single-resolution mode: every zone resolves to its own
// fine centroid. Endpoint separation at the focus zone is left to the arc
// expander's offset, which applies in both modes.
type FlatResolver struct {
	table CentroidTable
	focus ID
}

// NewFlatResolver binds a fine centroid table to a focus zone.
func NewFlatResolver(table CentroidTable, focus ID) (*FlatResolver, error) {
	if _, ok := table.Lookup(focus); !ok {
		return nil, &UnknownZoneError{ID: focus, Role: "focus"}
	}
	return &FlatResolver{table: table, focus: focus}, nil
}

// Focus returns the focus zone id.
func (r *FlatResolver) Focus() ID { return r.focus }

// Contains reports whether id has a centroid.
func (r *FlatResolver) Contains(id ID) bool {
	_, ok := r.table.Lookup(id)
	return ok
}

// Resolve returns id's own centroid.
func (r *FlatResolver) Resolve(id ID) (Coord, error) {
	c, ok := r.table.Lookup(id)
	if !ok {
		return Coord{}, &UnknownZoneError{ID: id, Role: "fine"}
	}
	return c, nil
}
