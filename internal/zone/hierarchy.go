package zone

import (
	"github.com/rotisserie/eris"
)

// Adjacency returns the coarse zones touching a coarse zone, the zone itself included.
type Adjacency interface {
	AdjacentCoarseZones(id ID) ([]ID, error)
}

// Hierarchy resolves fine zones to coordinates relative to a focus zone: fine
// zones in the focus's own or a touching coarse zone keep their own centroid,
// every other fine zone collapses onto its parent coarse zone's centroid.
type Hierarchy struct {
	parent   map[ID]ID
	children map[ID][]ID
	fine     CentroidTable
	coarse   CentroidTable
	adj      Adjacency
}

// NewHierarchy indexes fine zones by parent and checks that every fine zone
// has a fine centroid and a parent with a coarse centroid.
func NewHierarchy(fineZones []Zone, fine, coarse CentroidTable, adj Adjacency) (*Hierarchy, error) {
	if adj == nil {
		return nil, eris.New("zone: hierarchy requires an adjacency index")
	}
	h := &Hierarchy{
		parent:   make(map[ID]ID, len(fineZones)),
		children: make(map[ID][]ID),
		fine:     fine,
		coarse:   coarse,
		adj:      adj,
	}
	for _, z := range fineZones {
		if z.Parent == "" {
			return nil, &UnknownZoneError{ID: z.ID, Role: "fine", Detail: "no parent coarse zone"}
		}
		if _, ok := fine.Lookup(z.ID); !ok {
			return nil, &UnknownZoneError{ID: z.ID, Role: "fine", Detail: "no fine centroid"}
		}
		if _, ok := coarse.Lookup(z.Parent); !ok {
			return nil, &UnknownZoneError{ID: z.Parent, Role: "coarse", Detail: "parent of fine zone " + string(z.ID) + " has no centroid"}
		}
		if _, dup := h.parent[z.ID]; dup {
			return nil, eris.Errorf("zone: duplicate fine zone %q", string(z.ID))
		}
		h.parent[z.ID] = z.Parent
		h.children[z.Parent] = append(h.children[z.Parent], z.ID)
	}
	return h, nil
}

// Parent returns the coarse zone containing fine zone id.
func (h *Hierarchy) Parent(id ID) (ID, error) {
	p, ok := h.parent[id]
	if !ok {
		return "", &UnknownZoneError{ID: id, Role: "fine"}
	}
	return p, nil
}

// FineZones returns the number of registered fine zones.
func (h *Hierarchy) FineZones() int { return len(h.parent) }

// NearbySet computes the fine zones belonging to the focus zone's coarse zone
// or any coarse zone adjacent to it.
func (h *Hierarchy) NearbySet(focus ID) (NearbySet, error) {
	focusCoarse, ok := h.parent[focus]
	if !ok {
		return NearbySet{}, &UnknownZoneError{ID: focus, Role: "focus"}
	}
	adjacent, err := h.adj.AdjacentCoarseZones(focusCoarse)
	if err != nil {
		return NearbySet{}, eris.Wrapf(err, "zone: adjacency of focus %s", string(focus))
	}

	set := NearbySet{
		focus:   focus,
		coarse:  make(map[ID]struct{}, len(adjacent)+1),
		members: make(map[ID]struct{}),
	}
	// The focus coarse zone is always part of its own neighbourhood.
	set.coarse[focusCoarse] = struct{}{}
	for _, c := range adjacent {
		set.coarse[c] = struct{}{}
	}
	for c := range set.coarse {
		for _, f := range h.children[c] {
			set.members[f] = struct{}{}
		}
	}
	return set, nil
}

// Focus binds the hierarchy to one focus zone, computing its nearby set once.
func (h *Hierarchy) Focus(focus ID) (*FocusResolver, error) {
	nearby, err := h.NearbySet(focus)
	if err != nil {
		return nil, err
	}
	return &FocusResolver{h: h, nearby: nearby}, nil
}

// Resolve returns the display coordinate of fine zone id for a query centred
// on focus.
func (h *Hierarchy) Resolve(id, focus ID) (Coord, error) {
	r, err := h.Focus(focus)
	if err != nil {
		return Coord{}, err
	}
	return r.Resolve(id)
}

// FocusResolver resolves fine zones against a precomputed nearby set.
// It is read-only and safe for concurrent use.
type FocusResolver struct {
	h      *Hierarchy
	nearby NearbySet
}

// Focus returns the focus zone id.
func (r *FocusResolver) Focus() ID { return r.nearby.focus }

// Nearby returns the nearby set of the focus zone.
func (r *FocusResolver) Nearby() NearbySet { return r.nearby }

// Contains reports whether id is a registered fine zone.
func (r *FocusResolver) Contains(id ID) bool {
	_, ok := r.h.parent[id]
	return ok
}

// Resolve returns id's own centroid when it is nearby, else its parent's.
func (r *FocusResolver) Resolve(id ID) (Coord, error) {
	parent, ok := r.h.parent[id]
	if !ok {
		return Coord{}, &UnknownZoneError{ID: id, Role: "fine"}
	}
	if r.nearby.Contains(id) {
		c, ok := r.h.fine.Lookup(id)
		if !ok {
			return Coord{}, &UnknownZoneError{ID: id, Role: "fine", Detail: "no fine centroid"}
		}
		return c, nil
	}
	c, ok := r.h.coarse.Lookup(parent)
	if !ok {
		return Coord{}, &UnknownZoneError{ID: parent, Role: "coarse", Detail: "no coarse centroid"}
	}
	return c, nil
}

// NearbySet is the set of fine zones close to a focus zone.
type NearbySet struct {
	focus   ID
	coarse  map[ID]struct{}
	members map[ID]struct{}
}

// Focus returns the zone the set was computed for.
func (s NearbySet) Focus() ID { return s.focus }

// Contains reports whether fine zone id is nearby.
func (s NearbySet) Contains(id ID) bool {
	_, ok := s.members[id]
	return ok
}

// Len returns the number of nearby fine zones.
func (s NearbySet) Len() int { return len(s.members) }

// IDs returns the nearby fine zones in sorted order.
func (s NearbySet) IDs() []ID {
	return sortedKeys(s.members)
}

// CoarseZones returns the focus coarse zone and its neighbours in sorted order.
func (s NearbySet) CoarseZones() []ID {
	return sortedKeys(s.coarse)
}

func sortedKeys(m map[ID]struct{}) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}
