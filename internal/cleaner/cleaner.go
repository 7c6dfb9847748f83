// Package cleaner converts raw tab-delimited GDELT snapshots into clean JSON
// documents of typed records.
package cleaner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// Status is the outcome of cleaning one file.
type Status int

const (
	Cleaned Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Cleaned:
		return "cleaned"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Skip reasons.
const (
	ReasonAlreadyClean = "already clean"
	ReasonNotFound     = "not found"
)

// DefaultMaxLineBytes bounds a single raw line. GKG rows with large GCAM
// blocks run to a few hundred kilobytes.
const DefaultMaxLineBytes = 16 << 20

// Result describes one Clean call.
type Result struct {
	File      string
	Table     schema.Kind
	Status    Status
	Records   int64
	Dropped   int64
	Reason    string
	CleanPath string
	Elapsed   time.Duration
}

// Workspace is the subset of the local file index the cleaner needs.
type Workspace interface {
	Path(k schema.Kind, s workspace.State, name string) string
	IsClean(k schema.Kind, m workspace.Mode, rawName string) bool
	Add(k schema.Kind, s workspace.State, name string)
	Remove(k schema.Kind, s workspace.State, name string)
}

// Cleaner turns raw snapshots into clean JSON documents.
type Cleaner struct {
	ws           Workspace
	maxLineBytes int
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithMaxLineBytes overrides DefaultMaxLineBytes.
func WithMaxLineBytes(n int) Option {
	return func(c *Cleaner) { c.maxLineBytes = n }
}

// New creates a Cleaner over the given workspace.
func New(ws Workspace, opts ...Option) *Cleaner {
	c := &Cleaner{ws: ws, maxLineBytes: DefaultMaxLineBytes}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Clean converts one raw snapshot (by file name) in the given mode's raw
// directory. It never returns an error: failures are reported in the Result
// and the caller decides whether to continue.
func (c *Cleaner) Clean(ctx context.Context, rawName string, mode workspace.Mode, deleteRaw bool) (res Result) {
	start := time.Now()
	res = Result{File: rawName}
	defer func() { res.Elapsed = time.Since(start) }()

	k, err := schema.KindFromFileName(rawName)
	if err != nil {
		res.Status, res.Reason = Failed, err.Error()
		return res
	}
	res.Table = k
	log := zap.L().With(zap.String("component", "cleaner"), zap.String("table", k.String()),
		zap.String("file", rawName), zap.String("mode", mode.String()))

	cleanName := schema.CleanFileName(rawName)
	cleanState := workspace.CleanState(mode)
	res.CleanPath = c.ws.Path(k, cleanState, cleanName)

	if c.ws.IsClean(k, mode, rawName) {
		res.Status, res.Reason = Skipped, ReasonAlreadyClean
		log.Debug("already clean, skipping")
		return res
	}

	rawState := workspace.RawState(mode)
	rawPath := c.ws.Path(k, rawState, rawName)
	if _, err := os.Stat(rawPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Status, res.Reason = Skipped, ReasonNotFound
			log.Warn("raw file not found")
			return res
		}
		res.Status, res.Reason = Failed, eris.Wrap(err, "cleaner: stat raw").Error()
		return res
	}

	records, dropped, err := c.convert(ctx, k, rawPath, res.CleanPath)
	res.Records, res.Dropped = records, dropped
	if err != nil {
		res.Status, res.Reason = Failed, err.Error()
		log.Error("clean failed", zap.Error(err))
		return res
	}
	c.ws.Add(k, cleanState, cleanName)
	res.Status = Cleaned

	if deleteRaw {
		if err := os.Remove(rawPath); err != nil {
			log.Warn("delete raw failed", zap.Error(err))
		} else {
			c.ws.Remove(k, rawState, rawName)
		}
	}

	log.Info("cleaned",
		zap.Int64("records", records),
		zap.Int64("dropped", dropped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// convert streams rawPath into a temp file beside cleanPath and renames it
// into place only once every line has been read.
func (c *Cleaner) convert(ctx context.Context, k schema.Kind, rawPath, cleanPath string) (records, dropped int64, err error) {
	table, build, err := builderFor(k)
	if err != nil {
		return 0, 0, err
	}

	in, err := os.Open(rawPath)
	if err != nil {
		return 0, 0, eris.Wrap(err, "cleaner: open raw")
	}
	defer in.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(cleanPath), "."+filepath.Base(cleanPath)+".*.tmp")
	if err != nil {
		return 0, 0, eris.Wrap(err, "cleaner: create temp output")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	out := bufio.NewWriterSize(tmp, 1<<20)
	if _, err = out.WriteString("["); err != nil {
		return 0, 0, eris.Wrap(err, "cleaner: write output")
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, min(64<<10, c.maxLineBytes)), c.maxLineBytes)
	var line int64
	for sc.Scan() {
		line++
		if line%4096 == 0 {
			if err = ctx.Err(); err != nil {
				return records, dropped, eris.Wrap(err, "cleaner: interrupted")
			}
		}
		text := strings.TrimSuffix(sc.Text(), "\r")
		if text == "" {
			continue
		}
		rec, ok := build(rawRow{t: table, fields: strings.Split(text, "\t")})
		if !ok {
			dropped++
			continue
		}
		var b []byte
		if b, err = json.Marshal(rec); err != nil {
			return records, dropped, eris.Wrapf(err, "cleaner: encode line %d", line)
		}
		if records > 0 {
			if err = out.WriteByte(','); err != nil {
				return records, dropped, eris.Wrap(err, "cleaner: write output")
			}
		}
		if err = out.WriteByte('\n'); err != nil {
			return records, dropped, eris.Wrap(err, "cleaner: write output")
		}
		if _, err = out.Write(b); err != nil {
			return records, dropped, eris.Wrap(err, "cleaner: write output")
		}
		records++
	}
	if err = sc.Err(); err != nil {
		return records, dropped, eris.Wrapf(err, "cleaner: decode %s after line %d", filepath.Base(rawPath), line)
	}

	if _, err = out.WriteString("\n]\n"); err != nil {
		return records, dropped, eris.Wrap(err, "cleaner: write output")
	}
	if err = out.Flush(); err != nil {
		return records, dropped, eris.Wrap(err, "cleaner: flush output")
	}
	if err = tmp.Close(); err != nil {
		return records, dropped, eris.Wrap(err, "cleaner: close output")
	}
	if err = os.Rename(tmp.Name(), cleanPath); err != nil {
		return records, dropped, eris.Wrap(err, "cleaner: rename output")
	}
	return records, dropped, nil
}
