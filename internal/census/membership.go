package census

import (
	"github.com/sells-group/tazflow/internal/zone"
)

// Membership places one fine zone in a locality and lists the statistical
// zones it overlaps.
type Membership struct {
	TAZ       zone.ID
	Locality  string
	StatZones []StatZone
	Raw       string // statistical-zone list as read
}

// NewMembership canonicalizes the ids and parses the statistical-zone list.
func NewMembership(taz, locality, statZones string) Membership {
	return Membership{
		TAZ:       zone.ParseID(taz),
		Locality:  ParseLocality(locality),
		StatZones: SplitStatZones(statZones),
		Raw:       statZones,
	}
}

// ParseLocality canonicalizes a locality code so spreadsheet renderings such
// as "3000.0" match "3000".
func ParseLocality(raw string) string {
	return string(zone.ParseID(raw))
}

// DedupMemberships drops exact repeats of (TAZ, locality, statistical-zone
// list), keeping the first occurrence.
func DedupMemberships(ms []Membership) []Membership {
	type key struct {
		taz      zone.ID
		locality string
		zones    string
	}
	seen := make(map[key]struct{}, len(ms))
	out := make([]Membership, 0, len(ms))
	for _, m := range ms {
		k := key{m.TAZ, m.Locality, FormatStatZones(m.StatZones)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	return out
}
