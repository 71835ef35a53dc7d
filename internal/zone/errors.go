package zone

import "fmt"

// UnknownZoneError reports a zone id with no registered geometry, parent or
// centroid. It signals inconsistent input tables rather than a filterable row.
type UnknownZoneError struct {
	ID     ID
	Role   string // which reference failed, e.g. "focus", "fine", "coarse"
	Detail string
}

func (e *UnknownZoneError) Error() string {
	msg := fmt.Sprintf("unknown zone %q", string(e.ID))
	if e.Role != "" {
		msg = fmt.Sprintf("unknown %s zone %q", e.Role, string(e.ID))
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
