// Package batch downloads, cleans and stores whole days of snapshots with a
// bounded worker pool.
package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gdelt-ingest/internal/cleaner"
	"github.com/sells-group/gdelt-ingest/internal/feed"
	"github.com/sells-group/gdelt-ingest/internal/metrics"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// DefaultWorkers bounds concurrent file pipelines. GKG cleaning is memory
// heavy so the default stays low.
const DefaultWorkers = 2

// URLs resolves snapshot archive locations.
type URLs interface {
	SnapshotURL(k schema.Kind, ts time.Time) string
}

// Downloader fetches and extracts one archive into the batch raw directory.
type Downloader interface {
	Download(ctx context.Context, url string, mode workspace.Mode) (feed.Download, error)
}

// Cleaner converts one raw file.
type Cleaner interface {
	Clean(ctx context.Context, rawName string, mode workspace.Mode, deleteRaw bool) cleaner.Result
}

// Storer loads one clean document.
type Storer interface {
	LoadFile(ctx context.Context, t store.Target, path string) (int64, error)
}

// Files lists local raw files.
type Files interface {
	List(k schema.Kind, s workspace.State) []string
}

// Config tunes a Runner.
type Config struct {
	Tables    []schema.Kind
	Workers   int
	DeleteRaw bool
	// Store loads each cleaned file into the sink when set.
	Store bool
	// Reload also loads files that were already clean before this run.
	// Without it a re-run never loads the same document twice.
	Reload bool
}

// Deps are the Runner's collaborators. Storer may be nil when Config.Store
// is false.
type Deps struct {
	URLs       URLs
	Downloader Downloader
	Cleaner    Cleaner
	Storer     Storer
	Files      Files
	Metrics    *metrics.Metrics
}

// Summary counts one batch run.
type Summary struct {
	Downloaded     int64
	AlreadyLocal   int64
	Missing        int64
	DownloadFailed int64
	Cleaned        int64
	CleanSkipped   int64
	CleanFailed    int64
	Records        int64
	Dropped        int64
	Stored         int64
	StoreFailed    int64
	Elapsed        time.Duration
}

// Files is the number of cleaned or already-clean files.
func (s Summary) Files() int64 { return s.Cleaned + s.CleanSkipped }

// counters is the atomic form of Summary shared by workers.
type counters struct {
	downloaded, alreadyLocal, missing, downloadFailed atomic.Int64
	cleaned, cleanSkipped, cleanFailed                atomic.Int64
	records, dropped, stored, storeFailed             atomic.Int64
}

func (c *counters) summary(elapsed time.Duration) Summary {
	return Summary{
		Downloaded:     c.downloaded.Load(),
		AlreadyLocal:   c.alreadyLocal.Load(),
		Missing:        c.missing.Load(),
		DownloadFailed: c.downloadFailed.Load(),
		Cleaned:        c.cleaned.Load(),
		CleanSkipped:   c.cleanSkipped.Load(),
		CleanFailed:    c.cleanFailed.Load(),
		Records:        c.records.Load(),
		Dropped:        c.dropped.Load(),
		Stored:         c.stored.Load(),
		StoreFailed:    c.storeFailed.Load(),
		Elapsed:        elapsed,
	}
}

// Runner drives batch ingestion.
type Runner struct {
	cfg  Config
	deps Deps
}

// New creates a Runner.
func New(cfg Config, deps Deps) *Runner {
	if len(cfg.Tables) == 0 {
		cfg.Tables = schema.AllKinds
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Runner{cfg: cfg, deps: deps}
}

type job struct {
	kind schema.Kind
	url  string
	raw  string
}

// Days downloads every snapshot of the given UTC days for each table, then
// cleans (and optionally stores) each file as soon as it is local. A
// missing or failed file is counted and skipped.
func (r *Runner) Days(ctx context.Context, days []time.Time) (Summary, error) {
	var jobs []job
	for _, day := range days {
		for _, k := range r.cfg.Tables {
			for _, ts := range feed.DaySnapshots(day) {
				jobs = append(jobs, job{kind: k, url: r.deps.URLs.SnapshotURL(k, ts)})
			}
		}
	}
	zap.L().Info("batch download starting",
		zap.String("component", "batch"),
		zap.Int("days", len(days)),
		zap.Int("files", len(jobs)),
		zap.Int("workers", r.cfg.Workers),
	)
	return r.run(ctx, jobs)
}

// Local cleans (and optionally stores) every raw file already in the batch
// raw directories.
func (r *Runner) Local(ctx context.Context) (Summary, error) {
	var jobs []job
	for _, k := range r.cfg.Tables {
		for _, name := range r.deps.Files.List(k, workspace.Raw) {
			jobs = append(jobs, job{kind: k, raw: name})
		}
	}
	zap.L().Info("batch clean starting",
		zap.String("component", "batch"),
		zap.Int("files", len(jobs)),
		zap.Int("workers", r.cfg.Workers),
	)
	return r.run(ctx, jobs)
}

func (r *Runner) run(ctx context.Context, jobs []job) (Summary, error) {
	start := time.Now()
	var c counters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r.process(gctx, j, &c)
			return gctx.Err()
		})
	}

	err := g.Wait()
	sum := c.summary(time.Since(start))
	zap.L().Info("batch complete",
		zap.String("component", "batch"),
		zap.Int64("downloaded", sum.Downloaded),
		zap.Int64("already_local", sum.AlreadyLocal),
		zap.Int64("missing", sum.Missing),
		zap.Int64("cleaned", sum.Cleaned),
		zap.Int64("clean_failed", sum.CleanFailed),
		zap.Int64("records", sum.Records),
		zap.Int64("stored", sum.Stored),
		zap.Duration("elapsed", sum.Elapsed),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return sum, ctxErr
	}
	if err != nil {
		return sum, eris.Wrap(err, "batch: run")
	}
	return sum, nil
}

// process handles one file end to end. Only context cancellation stops it
// early; every other failure is counted.
func (r *Runner) process(ctx context.Context, j job, c *counters) {
	table := j.kind.String()
	log := zap.L().With(zap.String("component", "batch"), zap.String("table", table))

	name := j.raw
	if j.url != "" {
		d, err := r.deps.Downloader.Download(ctx, j.url, workspace.Batch)
		switch {
		case errors.Is(err, feed.ErrNotFound):
			c.missing.Add(1)
			r.deps.Metrics.File(table, metrics.StageDownload, "missing")
			log.Warn("snapshot not published", zap.String("url", j.url))
			return
		case err != nil:
			c.downloadFailed.Add(1)
			r.deps.Metrics.File(table, metrics.StageDownload, "failed")
			log.Warn("download failed", zap.String("url", j.url), zap.Error(err))
			return
		case d.Skipped:
			c.alreadyLocal.Add(1)
			r.deps.Metrics.File(table, metrics.StageDownload, "skipped")
		default:
			c.downloaded.Add(1)
			r.deps.Metrics.File(table, metrics.StageDownload, "ok")
		}
		name = d.Name
	}
	if ctx.Err() != nil {
		return
	}

	res := r.deps.Cleaner.Clean(ctx, name, workspace.Batch, r.cfg.DeleteRaw)
	r.deps.Metrics.File(table, metrics.StageClean, res.Status.String())
	r.deps.Metrics.Dropped(table, res.Dropped)
	c.dropped.Add(res.Dropped)
	switch {
	case res.Status == cleaner.Cleaned:
		c.cleaned.Add(1)
		c.records.Add(res.Records)
		r.deps.Metrics.Records(table, metrics.StageClean, res.Records)
		r.deps.Metrics.CleanDuration(table, res.Elapsed)
	case res.Status == cleaner.Skipped && res.Reason == cleaner.ReasonAlreadyClean:
		c.cleanSkipped.Add(1)
		if !r.cfg.Reload {
			return
		}
	default:
		c.cleanFailed.Add(1)
		log.Warn("clean failed", zap.String("file", name), zap.String("reason", res.Reason))
		return
	}

	if !r.cfg.Store || r.deps.Storer == nil {
		return
	}
	n, err := r.deps.Storer.LoadFile(ctx, store.Target{Kind: j.kind, Mode: workspace.Batch}, res.CleanPath)
	if err != nil {
		c.storeFailed.Add(1)
		r.deps.Metrics.File(table, metrics.StageStore, "failed")
		log.Error("store failed", zap.String("file", name), zap.Error(err))
		return
	}
	c.stored.Add(n)
	r.deps.Metrics.File(table, metrics.StageStore, "ok")
	r.deps.Metrics.Records(table, metrics.StageStore, n)
}
