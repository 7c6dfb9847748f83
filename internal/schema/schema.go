// Package schema describes the fixed, headerless column layouts of the GDELT 2.x
// Events, Global Knowledge Graph and Mentions snapshot files.
package schema

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies one of the three published record tables.
type Kind int

const (
	Events Kind = iota + 1
	GKG
	Mentions
)

// AllKinds lists every table kind in the order the pipeline processes them.
var AllKinds = []Kind{Events, Mentions, GKG}

// String returns the table name used in paths, logs and sink targets.
func (k Kind) String() string {
	switch k {
	case Events:
		return "events"
	case GKG:
		return "gkg"
	case Mentions:
		return "mentions"
	default:
		return "unknown"
	}
}

// Suffix returns the extracted snapshot file suffix following the timestamp,
// e.g. "export.CSV" for Events.
func (k Kind) Suffix() string {
	switch k {
	case Events:
		return "export.CSV"
	case GKG:
		return "gkg.csv"
	case Mentions:
		return "mentions.CSV"
	default:
		return ""
	}
}

// ArchiveSuffix returns the published (zipped) snapshot suffix.
func (k Kind) ArchiveSuffix() string {
	return k.Suffix() + ".zip"
}

// ParseKind converts a table name ("events", "gkg", "mentions") into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "events", "export":
		return Events, nil
	case "gkg":
		return GKG, nil
	case "mentions":
		return Mentions, nil
	default:
		return 0, eris.Errorf("unknown table: %q (valid: events, gkg, mentions)", s)
	}
}

// ParseKinds parses a comma-separated table list. An empty string selects all kinds.
func ParseKinds(s string) ([]Kind, error) {
	if strings.TrimSpace(s) == "" {
		return append([]Kind(nil), AllKinds...), nil
	}
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, part := range strings.Split(s, ",") {
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// TimestampLen is the length of the YYYYMMDDHHMMSS prefix of every snapshot name.
const TimestampLen = 14

// KindFromFileName derives the table kind from a snapshot file name such as
// "20210908101500.gkg.csv" or "20210908101500.export.CSV.zip".
func KindFromFileName(name string) (Kind, error) {
	if len(name) <= TimestampLen+1 || name[TimestampLen] != '.' {
		return 0, eris.Errorf("schema: malformed snapshot name %q", name)
	}
	ext := strings.TrimSuffix(name[TimestampLen+1:], ".zip")
	for _, k := range AllKinds {
		if ext == k.Suffix() {
			return k, nil
		}
	}
	if ext == "json" {
		return 0, eris.Errorf("schema: clean file name %q does not identify a table", name)
	}
	return 0, eris.Errorf("schema: unknown snapshot extension %q in %q", ext, name)
}

// CleanFileName maps a raw snapshot name to its clean output name by replacing
// the CSV extension with ".json".
func CleanFileName(rawName string) string {
	rawName = strings.TrimSuffix(rawName, ".zip")
	switch {
	case strings.HasSuffix(rawName, ".CSV"):
		return strings.TrimSuffix(rawName, ".CSV") + ".json"
	case strings.HasSuffix(rawName, ".csv"):
		return strings.TrimSuffix(rawName, ".csv") + ".json"
	default:
		return rawName + ".json"
	}
}
