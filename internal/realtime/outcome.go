// Package realtime follows the feed's manifest one snapshot at a time,
// downloading, cleaning and storing each new publication as it appears.
package realtime

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdelt-ingest/internal/feed"
)

// Outcome classifies one polling cycle.
type Outcome int

const (
	// Continue means the snapshot was ingested and the next one is 15 minutes out.
	Continue Outcome = iota
	// InGap means the next snapshot falls after the nightly 22:45 to 00:00 gap.
	InGap
	// TooEarly means the manifest has not advanced since the last cycle.
	TooEarly
	// TooLate means a snapshot was missed. Terminal.
	TooLate
	// Finished means the window is exhausted. Terminal.
	Finished
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "Continue"
	case InGap:
		return "InGap"
	case TooEarly:
		return "TooEarly"
	case TooLate:
		return "TooLate"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the loop stops after this outcome.
func (o Outcome) Terminal() bool { return o == TooLate || o == Finished }

var (
	// ErrTooLate is returned when the manifest skipped past the expected snapshot.
	ErrTooLate = eris.New("realtime: manifest advanced past the expected snapshot")
	// ErrStalled is returned when the manifest stops advancing for too long.
	ErrStalled = eris.New("realtime: feed stopped advancing")
)

// NextExpected returns the publication that should follow cur and whether
// waiting for it crosses the nightly gap. The last snapshot of a day is
// 22:45 UTC and the next is 00:00 UTC the following day.
func NextExpected(cur time.Time) (time.Time, Outcome) {
	cur = cur.UTC()
	next := cur.Add(feed.Cadence)
	if next.After(feed.LastSlot(cur)) {
		midnight := time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, time.UTC)
		return midnight, InGap
	}
	return next, Continue
}

// Unit scales a window size to a number of snapshots.
type Unit int

const (
	UnitFile Unit = iota
	UnitHour
	UnitDay
)

func (u Unit) String() string {
	switch u {
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	default:
		return "file"
	}
}

// Snapshots is the number of publications in one unit.
func (u Unit) Snapshots() int {
	switch u {
	case UnitHour:
		return 4
	case UnitDay:
		return feed.SnapshotsPerDay
	default:
		return 1
	}
}

// ParseUnit accepts file, hour or day (plural forms too).
func ParseUnit(s string) (Unit, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "", "file":
		return UnitFile, nil
	case "hour":
		return UnitHour, nil
	case "day":
		return UnitDay, nil
	}
	return UnitFile, eris.Errorf("realtime: unknown window unit %q (want file, hour or day)", s)
}

// Windows converts n units into a snapshot count.
func Windows(n int, u Unit) (int, error) {
	if n <= 0 {
		return 0, eris.Errorf("realtime: window must be positive, got %d", n)
	}
	return n * u.Snapshots(), nil
}
