// Package feed knows the shape of the GDELT 2.x publication: the lastupdate
// manifest, snapshot naming and the 15-minute cadence.
package feed

import (
	"bufio"
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdelt-ingest/internal/codec"
	"github.com/sells-group/gdelt-ingest/internal/fetcher"
	"github.com/sells-group/gdelt-ingest/internal/schema"
)

const (
	// DefaultBaseURL is where GDELT 2.x publishes snapshot archives.
	DefaultBaseURL = "http://data.gdeltproject.org/gdeltv2/"
	// ManifestName is the manifest file under the base URL.
	ManifestName = "lastupdate.txt"
)

// ErrNotFound is returned when a snapshot or manifest is missing upstream.
var ErrNotFound = fetcher.ErrNotFound

// Entry is one manifest line.
type Entry struct {
	Size      int64
	Hash      string
	URL       string
	Name      string
	Kind      schema.Kind
	Timestamp time.Time
}

// Manifest is the parsed lastupdate file: the newest snapshot of each table.
type Manifest struct {
	Timestamp time.Time
	Entries   []Entry
}

// Entry returns the line for one table.
func (m *Manifest) Entry(k schema.Kind) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Kind == k {
			return e, true
		}
	}
	return Entry{}, false
}

// ParseManifest reads a manifest. Each non-blank line is "size hash url"; the
// file name is the last path segment of the URL, its first 14 characters are
// the snapshot timestamp and the remainder names the table.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: manifest line %d", lineNo)
		}
		if len(m.Entries) == 0 {
			m.Timestamp = e.Timestamp
		} else if !e.Timestamp.Equal(m.Timestamp) {
			return nil, eris.Errorf("feed: manifest line %d: timestamp %s differs from %s",
				lineNo, codec.FormatTimestamp(e.Timestamp), codec.FormatTimestamp(m.Timestamp))
		}
		m.Entries = append(m.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "feed: read manifest")
	}
	if len(m.Entries) == 0 {
		return nil, eris.New("feed: empty manifest")
	}
	return m, nil
}

func parseEntry(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Entry{}, eris.Errorf("expected size, hash and url, got %q", line)
	}
	e := Entry{Hash: fields[1], URL: fields[len(fields)-1]}
	e.Name = path.Base(e.URL)

	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Entry{}, eris.Wrapf(err, "size %q", fields[0])
	}
	e.Size = size

	if len(e.Name) <= schema.TimestampLen {
		return Entry{}, eris.Errorf("malformed snapshot name %q", e.Name)
	}
	ts := codec.Timestamp(e.Name[:schema.TimestampLen])
	if ts == nil {
		return Entry{}, eris.Errorf("bad timestamp in %q", e.Name)
	}
	e.Timestamp = *ts

	if e.Kind, err = schema.KindFromFileName(e.Name); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Feed resolves manifests and snapshot URLs against one GDELT base URL.
type Feed struct {
	fetcher     fetcher.Fetcher
	baseURL     string
	manifestURL string
}

// New creates a Feed. An empty manifestURL defaults to the manifest under
// baseURL.
func New(f fetcher.Fetcher, baseURL, manifestURL string) *Feed {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if manifestURL == "" {
		manifestURL = baseURL + ManifestName
	}
	return &Feed{fetcher: f, baseURL: baseURL, manifestURL: manifestURL}
}

// ManifestURL returns the manifest location.
func (f *Feed) ManifestURL() string { return f.manifestURL }

// Latest fetches and parses the current manifest.
func (f *Feed) Latest(ctx context.Context) (*Manifest, error) {
	body, err := f.fetcher.Download(ctx, f.manifestURL)
	if err != nil {
		return nil, eris.Wrap(err, "feed: fetch manifest")
	}
	defer body.Close() //nolint:errcheck
	return ParseManifest(body)
}

// SnapshotURL returns the archive URL of one table at one timestamp.
func (f *Feed) SnapshotURL(k schema.Kind, ts time.Time) string {
	return f.baseURL + SnapshotName(k, ts)
}

// SnapshotName returns the archive name, e.g. 20210908101500.export.CSV.zip.
func SnapshotName(k schema.Kind, ts time.Time) string {
	return codec.FormatTimestamp(ts) + "." + k.ArchiveSuffix()
}
