// Package flow expands origin-destination trip matrices into timestamped arc
// records for flow maps.
package flow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Bucket is one time-of-day column of an OD matrix.
type Bucket struct {
	Column string
	Hour   int
	Minute int
}

// Label renders the bucket start as "HH:MM".
func (b Bucket) Label() string {
	return fmt.Sprintf("%02d:%02d", b.Hour, b.Minute)
}

// Offset is the bucket start relative to midnight.
func (b Bucket) Offset() time.Duration {
	return time.Duration(b.Hour)*time.Hour + time.Duration(b.Minute)*time.Minute
}

// MalformedBucketError reports a time-bucket column that does not follow the
// h{hour} / h{hour}{minute:02d} naming convention.
type MalformedBucketError struct {
	Column string
	Reason string
}

func (e *MalformedBucketError) Error() string {
	return fmt.Sprintf("malformed time bucket column %q: %s", e.Column, e.Reason)
}

// ParseBucket parses "h7" (hourly) or "h730" / "h1930" (half-hourly).
func ParseBucket(column string) (Bucket, error) {
	name := strings.TrimSpace(column)
	if len(name) < 2 || name[0] != 'h' {
		return Bucket{}, &MalformedBucketError{Column: column, Reason: `expected "h" followed by digits`}
	}
	digits := name[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Bucket{}, &MalformedBucketError{Column: column, Reason: `expected "h" followed by digits`}
		}
	}

	var hour, minute int
	switch len(digits) {
	case 1, 2:
		hour, _ = strconv.Atoi(digits)
	case 3, 4:
		hour, _ = strconv.Atoi(digits[:len(digits)-2])
		minute, _ = strconv.Atoi(digits[len(digits)-2:])
	default:
		return Bucket{}, &MalformedBucketError{Column: column, Reason: "too many digits"}
	}
	if hour > 23 {
		return Bucket{}, &MalformedBucketError{Column: column, Reason: "hour out of range"}
	}
	if minute > 59 {
		return Bucket{}, &MalformedBucketError{Column: column, Reason: "minute out of range"}
	}
	return Bucket{Column: column, Hour: hour, Minute: minute}, nil
}

// Schedule names the bucket columns an OD matrix is expected to carry.
type Schedule struct {
	name    string
	columns []string // nil: every non-id column is a bucket
}

// AutoSchedule treats every non-id column as a bucket column.
func AutoSchedule() Schedule { return Schedule{name: "auto"} }

// HourlySchedule expects h0 … h23.
func HourlySchedule() Schedule {
	cols := make([]string, 0, 24)
	for h := 0; h < 24; h++ {
		cols = append(cols, fmt.Sprintf("h%d", h))
	}
	return Schedule{name: "hourly", columns: cols}
}

// HalfHourSchedule expects h{hour}00 and h{hour}30 for hours in [from, to).
func HalfHourSchedule(from, to int) Schedule {
	var cols []string
	for h := from; h < to; h++ {
		for _, m := range []int{0, 30} {
			cols = append(cols, fmt.Sprintf("h%d%02d", h, m))
		}
	}
	return Schedule{name: "half-hourly", columns: cols}
}

// ParseSchedule selects a schedule by name.
func ParseSchedule(name string, halfHourFrom, halfHourTo int) (Schedule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return AutoSchedule(), nil
	case "hourly":
		return HourlySchedule(), nil
	case "half-hourly", "halfhourly", "half_hourly":
		if halfHourFrom < 0 || halfHourTo > 24 || halfHourFrom >= halfHourTo {
			return Schedule{}, eris.Errorf("flow: invalid half-hour window [%d, %d)", halfHourFrom, halfHourTo)
		}
		return HalfHourSchedule(halfHourFrom, halfHourTo), nil
	}
	return Schedule{}, eris.Errorf("flow: unknown bucket schedule %q", name)
}

// Name returns the schedule name.
func (s Schedule) Name() string { return s.name }

// Match maps the schedule onto the given columns. It returns the buckets in
// ascending time order and, for each, its index into columns.
func (s Schedule) Match(columns []string) ([]Bucket, []int, error) {
	var buckets []Bucket
	var idx []int

	if s.columns == nil {
		for i, col := range columns {
			b, err := ParseBucket(col)
			if err != nil {
				return nil, nil, err
			}
			buckets = append(buckets, b)
			idx = append(idx, i)
		}
	} else {
		pos := make(map[string]int, len(columns))
		for i, col := range columns {
			pos[strings.TrimSpace(col)] = i
		}
		for _, want := range s.columns {
			i, ok := pos[want]
			if !ok {
				return nil, nil, &MalformedBucketError{Column: want, Reason: "missing from " + s.name + " matrix"}
			}
			b, err := ParseBucket(want)
			if err != nil {
				return nil, nil, err
			}
			buckets = append(buckets, b)
			idx = append(idx, i)
		}
	}

	if len(buckets) == 0 {
		return nil, nil, &MalformedBucketError{Reason: "no time bucket columns"}
	}

	seen := make(map[time.Duration]string, len(buckets))
	for _, b := range buckets {
		if prev, dup := seen[b.Offset()]; dup {
			return nil, nil, &MalformedBucketError{Column: b.Column, Reason: "same time as column " + prev}
		}
		seen[b.Offset()] = b.Column
	}

	order := make([]int, len(buckets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return buckets[order[a]].Offset() < buckets[order[b]].Offset() })

	sortedBuckets := make([]Bucket, len(buckets))
	sortedIdx := make([]int, len(buckets))
	for i, o := range order {
		sortedBuckets[i] = buckets[o]
		sortedIdx[i] = idx[o]
	}
	return sortedBuckets, sortedIdx, nil
}
