package realtime

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/cleaner"
	"github.com/sells-group/gdelt-ingest/internal/feed"
	"github.com/sells-group/gdelt-ingest/internal/metrics"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// ManifestSource returns the newest published snapshots.
type ManifestSource interface {
	Latest(ctx context.Context) (*feed.Manifest, error)
}

// Downloader fetches a snapshot archive and returns the local raw file name.
type Downloader interface {
	Fetch(ctx context.Context, url string, mode workspace.Mode) (string, error)
}

// Cleaner converts a raw file into a clean document.
type Cleaner interface {
	Clean(ctx context.Context, rawName string, mode workspace.Mode, deleteRaw bool) cleaner.Result
}

// Storer loads clean documents into the sink.
type Storer interface {
	Clear(ctx context.Context, t store.Target) error
	LoadFile(ctx context.Context, t store.Target, path string) (int64, error)
}

// Reporter receives the summary once the window is complete.
type Reporter interface {
	Report(ctx context.Context, s Summary) error
}

// Config tunes the polling loop.
type Config struct {
	Tables          []schema.Kind
	Windows         int
	EarlyBackoff    time.Duration
	MaxEarlyRetries int
	Tick            time.Duration
	DeleteRaw       bool
}

func (c *Config) applyDefaults() {
	if len(c.Tables) == 0 {
		c.Tables = schema.AllKinds
	}
	if c.Windows <= 0 {
		c.Windows = 1
	}
	if c.EarlyBackoff <= 0 {
		c.EarlyBackoff = 30 * time.Second
	}
	if c.MaxEarlyRetries <= 0 {
		c.MaxEarlyRetries = 20
	}
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
}

// Summary accumulates over a run.
type Summary struct {
	Tables    []schema.Kind
	Cycles    int
	Files     int
	Skipped   int
	Records   int64
	Dropped   int64
	First     time.Time
	Last      time.Time
	StartedAt time.Time
	Elapsed   time.Duration
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Manifests ManifestSource
	Downloads Downloader
	Cleaner   Cleaner
	Store     Storer
	Reporter  Reporter
	Metrics   *metrics.Metrics
	Clock     Clock
}

// Scheduler runs one polling cycle per expected snapshot. It is not safe
// for concurrent use.
type Scheduler struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	started      bool
	lastSeen     time.Time
	expectedNext time.Time
	remaining    int
	summary      Summary
}

// New creates a Scheduler.
func New(cfg Config, deps Deps) *Scheduler {
	cfg.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	return &Scheduler{
		cfg:       cfg,
		deps:      deps,
		log:       zap.L().With(zap.String("component", "realtime")),
		remaining: cfg.Windows,
		summary:   Summary{Tables: cfg.Tables},
	}
}

// Remaining is the number of snapshots still to ingest.
func (s *Scheduler) Remaining() int { return s.remaining }

// ExpectedNext is the publication the scheduler is waiting for. Zero before
// the first cycle.
func (s *Scheduler) ExpectedNext() time.Time { return s.expectedNext }

// Summary returns the totals so far.
func (s *Scheduler) Summary() Summary { return s.summary }

// Run loops until the window is finished, the feed misses a snapshot, the
// feed stalls, or ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.summary.StartedAt = s.deps.Clock.Now()
	s.log.Info("realtime run starting",
		zap.Int("windows", s.cfg.Windows),
		zap.String("tables", kindList(s.cfg.Tables)),
	)

	early := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cycleStart := s.deps.Clock.Now()
		out, err := s.Step(ctx)
		if err != nil {
			return err
		}
		s.deps.Metrics.Cycle(out.String())

		switch out {
		case TooEarly:
			early++
			if early > s.cfg.MaxEarlyRetries {
				return eris.Wrapf(ErrStalled, "no new snapshot after %d retries since %s",
					s.cfg.MaxEarlyRetries, s.lastSeen.Format(time.RFC3339))
			}
			s.log.Debug("manifest not advanced, backing off",
				zap.Int("attempt", early), zap.Duration("backoff", s.cfg.EarlyBackoff))
			if err := s.deps.Clock.Sleep(ctx, s.cfg.EarlyBackoff); err != nil {
				return err
			}
			continue
		case TooLate:
			return eris.Wrapf(ErrTooLate, "expected %s", s.expectedNext.Format(time.RFC3339))
		case Finished:
			s.summary.Elapsed = s.deps.Clock.Now().Sub(s.summary.StartedAt)
			s.log.Info("realtime window complete",
				zap.Int("cycles", s.summary.Cycles),
				zap.Int("files", s.summary.Files),
				zap.Int64("records", s.summary.Records),
			)
			if s.deps.Reporter != nil {
				if err := s.deps.Reporter.Report(ctx, s.summary); err != nil {
					s.log.Warn("report failed", zap.Error(err))
				}
			}
			return nil
		}

		early = 0
		if err := s.wait(ctx, cycleStart); err != nil {
			return err
		}
	}
}

// Step runs a single cycle: read the manifest, classify it against the
// last one, ingest every requested table and schedule the next cycle. A
// manifest that cannot be read counts as TooEarly. If ctx ends mid-cycle,
// Step returns its error and the cycle does not count against the window.
func (s *Scheduler) Step(ctx context.Context) (Outcome, error) {
	m, err := s.deps.Manifests.Latest(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TooEarly, ctxErr
		}
		s.log.Warn("manifest unavailable", zap.Error(err))
		return TooEarly, nil
	}
	ts := m.Timestamp

	if s.started {
		if !ts.After(s.lastSeen) {
			return TooEarly, nil
		}
		if ts.After(s.expectedNext) {
			s.log.Error("missed snapshot",
				zap.Time("expected", s.expectedNext), zap.Time("manifest", ts))
			return TooLate, nil
		}
	}

	first := !s.started
	if err := s.ingest(ctx, m, first); err != nil {
		s.log.Warn("cycle interrupted", zap.Time("snapshot", ts), zap.Error(err))
		return Continue, err
	}
	s.started = true
	s.lastSeen = ts
	s.summary.Cycles++
	if s.summary.First.IsZero() {
		s.summary.First = ts
	}
	s.summary.Last = ts

	s.remaining--
	if s.remaining <= 0 {
		return Finished, nil
	}

	next, out := NextExpected(ts)
	s.expectedNext = next
	s.log.Info("cycle complete",
		zap.Time("snapshot", ts),
		zap.Time("next", next),
		zap.Stringer("outcome", out),
		zap.Int("remaining", s.remaining),
	)
	return out, nil
}

// ingest runs every requested table for one manifest. Per-table failures
// are logged and skipped; only cancellation is returned.
func (s *Scheduler) ingest(ctx context.Context, m *feed.Manifest, first bool) error {
	for _, k := range s.cfg.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := store.Target{Kind: k, Mode: workspace.Realtime}
		log := s.log.With(zap.String("table", k.String()))

		if first {
			if err := s.deps.Store.Clear(ctx, target); err != nil {
				log.Warn("clear realtime table failed", zap.Error(err))
			}
		}

		entry, ok := m.Entry(k)
		if !ok {
			log.Warn("table missing from manifest")
			s.summary.Skipped++
			continue
		}

		name, err := s.deps.Downloads.Fetch(ctx, entry.URL, workspace.Realtime)
		if err != nil {
			log.Warn("download failed, skipping table this cycle", zap.String("url", entry.URL), zap.Error(err))
			s.deps.Metrics.File(k.String(), metrics.StageDownload, "failed")
			s.summary.Skipped++
			continue
		}
		s.deps.Metrics.File(k.String(), metrics.StageDownload, "ok")

		res := s.deps.Cleaner.Clean(ctx, name, workspace.Realtime, s.cfg.DeleteRaw)
		s.deps.Metrics.File(k.String(), metrics.StageClean, res.Status.String())
		s.deps.Metrics.Dropped(k.String(), res.Dropped)
		if res.Status == cleaner.Cleaned {
			s.deps.Metrics.Records(k.String(), metrics.StageClean, res.Records)
			s.deps.Metrics.CleanDuration(k.String(), res.Elapsed)
		}
		s.summary.Dropped += res.Dropped
		if !cleanReady(res) {
			log.Warn("clean did not produce a document", zap.String("file", name),
				zap.Stringer("status", res.Status), zap.String("reason", res.Reason))
			s.summary.Skipped++
			continue
		}

		n, err := s.deps.Store.LoadFile(ctx, target, res.CleanPath)
		if err != nil {
			log.Error("store failed", zap.String("file", name), zap.Error(err))
			s.deps.Metrics.File(k.String(), metrics.StageStore, "failed")
			s.summary.Skipped++
			continue
		}
		s.deps.Metrics.File(k.String(), metrics.StageStore, "ok")
		s.deps.Metrics.Records(k.String(), metrics.StageStore, n)
		s.deps.Metrics.Snapshot(k.String(), entry.Timestamp)
		s.summary.Files++
		s.summary.Records += n
	}
	return ctx.Err()
}

// cleanReady reports whether a clean document exists to be stored.
func cleanReady(res cleaner.Result) bool {
	return res.Status == cleaner.Cleaned ||
		(res.Status == cleaner.Skipped && res.Reason == cleaner.ReasonAlreadyClean)
}

// wait sleeps until the expected snapshot in Tick-sized steps. When the
// expected time has already passed, it waits one cadence less the time the
// cycle took.
func (s *Scheduler) wait(ctx context.Context, cycleStart time.Time) error {
	now := s.deps.Clock.Now()
	until := s.expectedNext
	if !until.After(now) {
		d := feed.Cadence - now.Sub(cycleStart)
		if d < 0 {
			d = 0
		}
		until = now.Add(d)
	}

	for {
		left := until.Sub(s.deps.Clock.Now())
		if left <= 0 {
			return nil
		}
		s.log.Info("waiting for next snapshot",
			zap.Duration("remaining", left.Round(time.Second)),
			zap.Time("expected", s.expectedNext))
		if err := s.deps.Clock.Sleep(ctx, min(left, s.cfg.Tick)); err != nil {
			return err
		}
	}
}

func kindList(kinds []schema.Kind) string {
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += ","
		}
		out += k.String()
	}
	return out
}

// LogReporter writes the summary to the log.
type LogReporter struct{}

func (LogReporter) Report(_ context.Context, s Summary) error {
	zap.L().Info("realtime summary",
		zap.String("component", "realtime"),
		zap.String("tables", kindList(s.Tables)),
		zap.Int("cycles", s.Cycles),
		zap.Int("files", s.Files),
		zap.Int("skipped", s.Skipped),
		zap.Int64("records", s.Records),
		zap.Int64("dropped", s.Dropped),
		zap.Time("first_snapshot", s.First),
		zap.Time("last_snapshot", s.Last),
		zap.Duration("elapsed", s.Elapsed),
	)
	return nil
}
