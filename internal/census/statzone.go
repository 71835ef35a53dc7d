// Package census joins per-locality demographic tables onto traffic analysis
// zones and validates the result.
package census

import (
	"math"
	"strconv"
	"strings"
)

// StatZone is a statistical-zone number within a locality. Positive values are
// real zones; the two sentinels below mark locality-level rows and values that
// could not be parsed.
type StatZone int

const (
	// WholeLocality marks a demographic record aggregated over the whole
	// locality (blank statistical-zone column).
	WholeLocality StatZone = 0
	// Unmatched marks an unparseable or non-positive statistical-zone value.
	// It never matches anything.
	Unmatched StatZone = -1
)

func (s StatZone) String() string {
	switch s {
	case WholeLocality:
		return ""
	case Unmatched:
		return "unmatched"
	}
	return strconv.Itoa(int(s))
}

// Valid reports whether s names a real statistical zone.
func (s StatZone) Valid() bool { return s > 0 }

// ParseStatZone normalizes a raw statistical-zone value. Compound values keep
// their leading component ("12+3" is 12). Spreadsheet renderings such as
// "12.0" are accepted.
func ParseStatZone(raw string) StatZone {
	s := strings.Trim(strings.TrimSpace(raw), "\x00")
	if s == "" {
		return WholeLocality
	}
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 {
			return Unmatched
		}
		n = int(f)
	}
	if n <= 0 {
		return Unmatched
	}
	return StatZone(n)
}

// SplitStatZones parses a comma-delimited statistical-zone list. Blank
// entries are dropped; unparseable entries become Unmatched.
func SplitStatZones(raw string) []StatZone {
	var out []StatZone
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, ParseStatZone(part))
	}
	return out
}

// FormatStatZones renders a list the way SplitStatZones reads it.
func FormatStatZones(zs []StatZone) string {
	parts := make([]string, 0, len(zs))
	for _, z := range zs {
		parts = append(parts, z.String())
	}
	return strings.Join(parts, ",")
}
