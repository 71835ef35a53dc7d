package flow

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TimeLayout is the ISO-8601 rendering of arc timestamps (no zone; the day is
// a representative day, not a calendar date).
const TimeLayout = "2006-01-02T15:04:05"

// Direction selects which end of an OD row is matched against the focus zone.
type Direction string

const (
	// To matches rows whose destination is the focus zone.
	To Direction = "to"
	// From matches rows whose origin is the focus zone.
	From Direction = "from"
)

// ParseDirections expands "to", "from" or "both" ("to" first).
func ParseDirections(s string) ([]Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "to":
		return []Direction{To}, nil
	case "from":
		return []Direction{From}, nil
	case "", "both":
		return []Direction{To, From}, nil
	}
	return nil, eris.Errorf("flow: unknown direction %q", s)
}

// ArcRecord is one arc of a flow map: a scaled trip count between two
// coordinates during one time bucket.
type ArcRecord struct {
	FromLat   float64   `json:"fromLat"`
	FromLon   float64   `json:"fromLon"`
	ToLat     float64   `json:"toLat"`
	ToLon     float64   `json:"toLon"`
	Time      time.Time `json:"time"`
	Trips     int64     `json:"trips"`
	Hour      string    `json:"hour"`
	Direction Direction `json:"direction"`

	Row    int `json:"-"`
	Bucket int `json:"-"`
}

// Timestamp renders Time in TimeLayout.
func (a ArcRecord) Timestamp() string {
	return a.Time.Format(TimeLayout)
}
