package feed

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	// Cadence is the interval between consecutive snapshots.
	Cadence = 15 * time.Minute
	// SnapshotsPerDay counts the publications from 00:00 through 22:45.
	SnapshotsPerDay = 92
)

// LastSlot returns the final publication of ts's UTC day (22:45).
func LastSlot(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 22, 45, 0, 0, time.UTC)
}

// DaySnapshots lists every publication timestamp of a UTC day in order.
func DaySnapshots(day time.Time) []time.Time {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, 0, SnapshotsPerDay)
	for ts := start; !ts.After(LastSlot(start)); ts = ts.Add(Cadence) {
		out = append(out, ts)
	}
	return out
}

var dayLayouts = []string{"2006/01/02", "2006-01-02", "20060102"}

// ParseDay parses a UTC day in YYYY/MM/DD, YYYY-MM-DD or YYYYMMDD form.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("feed: invalid date %q (want YYYY/MM/DD)", s)
}

// ParseDays parses a comma-separated day list, preserving order and
// dropping repeats.
func ParseDays(s string) ([]time.Time, error) {
	var days []time.Time
	seen := make(map[time.Time]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseDay(part)
		if err != nil {
			return nil, err
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, eris.New("feed: no dates given")
	}
	return days, nil
}
