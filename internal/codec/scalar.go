// Package codec parses raw GDELT tokens and compound GKG fields into typed,
// optional values. Every function is total: malformed input yields an absent
// (nil) value, never an error.
package codec

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the fourteen-digit UTC form used by every GDELT date column.
const TimestampLayout = "20060102150405"

// coordMarker is the stray character the feed injects into numeric geo tokens.
const coordMarker = "#"

// String returns a pointer to s, or nil when s is blank.
func String(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Int parses a base-10 integer. Values written as floats ("3.0") are accepted
// when they carry no fractional part.
func Int(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return nil
	}
	v := int64(f)
	return &v
}

// Float parses a float64. NaN and infinities are treated as absent.
func Float(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Bool parses the 0/1 flags used by IsRootEvent and InRawText.
func Bool(s string) *bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}

// Coordinate strips every stray marker from a latitude or longitude token
// before parsing it as a float.
func Coordinate(s string) *float64 {
	return Float(strings.ReplaceAll(s, coordMarker, ""))
}

// Timestamp parses a YYYYMMDDHHMMSS token as a UTC time.
func Timestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) != len(TimestampLayout) {
		return nil
	}
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// FormatTimestamp renders t in the fourteen-digit feed form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
