package realtime

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/cleaner"
	"github.com/sells-group/gdelt-ingest/internal/feed"
	"github.com/sells-group/gdelt-ingest/internal/metrics"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func at(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func()
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onSleep != nil {
		c.onSleep()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) count(d time.Duration) int {
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

// fakeManifests replays a script of manifest timestamps, repeating the last.
// A zero timestamp in the script yields an error.
type fakeManifests struct {
	script []time.Time
	calls  int
}

func (f *fakeManifests) Latest(context.Context) (*feed.Manifest, error) {
	i := min(f.calls, len(f.script)-1)
	f.calls++
	ts := f.script[i]
	if ts.IsZero() {
		return nil, errors.New("connection reset by peer")
	}
	m := &feed.Manifest{Timestamp: ts}
	for _, k := range schema.AllKinds {
		name := feed.SnapshotName(k, ts)
		m.Entries = append(m.Entries, feed.Entry{
			URL: "http://data.example/gdeltv2/" + name, Name: name, Kind: k, Timestamp: ts,
		})
	}
	return m, nil
}

type fakeDownloads struct {
	fail map[schema.Kind]bool
	urls []string
}

func (f *fakeDownloads) Fetch(_ context.Context, url string, mode workspace.Mode) (string, error) {
	if mode != workspace.Realtime {
		return "", errors.New("wrong mode")
	}
	f.urls = append(f.urls, url)
	name := strings.TrimSuffix(path.Base(url), ".zip")
	k, err := schema.KindFromFileName(name)
	if err != nil {
		return "", err
	}
	if f.fail[k] {
		return "", feed.ErrNotFound
	}
	return name, nil
}

type fakeCleaner struct {
	status map[schema.Kind]cleaner.Result
}

func (f *fakeCleaner) Clean(_ context.Context, rawName string, _ workspace.Mode, _ bool) cleaner.Result {
	k, _ := schema.KindFromFileName(rawName)
	if r, ok := f.status[k]; ok {
		r.File = rawName
		return r
	}
	return cleaner.Result{
		File: rawName, Table: k, Status: cleaner.Cleaned, Records: 10,
		CleanPath: "/clean/" + schema.CleanFileName(rawName),
	}
}

type fakeStore struct {
	clears []store.Target
	loads  []string
	err    error
	onLoad func()
}

func (f *fakeStore) Clear(_ context.Context, t store.Target) error {
	f.clears = append(f.clears, t)
	return nil
}

func (f *fakeStore) LoadFile(_ context.Context, _ store.Target, p string) (int64, error) {
	if f.onLoad != nil {
		f.onLoad()
	}
	if f.err != nil {
		return 0, f.err
	}
	f.loads = append(f.loads, p)
	return 10, nil
}

type fakeReporter struct {
	got   []Summary
	calls int
}

func (f *fakeReporter) Report(_ context.Context, s Summary) error {
	f.calls++
	f.got = append(f.got, s)
	return nil
}

type harness struct {
	clock     *fakeClock
	manifests *fakeManifests
	downloads *fakeDownloads
	cleaner   *fakeCleaner
	store     *fakeStore
	reporter  *fakeReporter
}

func newHarness(start time.Time, script ...time.Time) *harness {
	return &harness{
		clock:     &fakeClock{now: start},
		manifests: &fakeManifests{script: script},
		downloads: &fakeDownloads{fail: map[schema.Kind]bool{}},
		cleaner:   &fakeCleaner{status: map[schema.Kind]cleaner.Result{}},
		store:     &fakeStore{},
		reporter:  &fakeReporter{},
	}
}

func (h *harness) scheduler(cfg Config) *Scheduler {
	return New(cfg, Deps{
		Manifests: h.manifests,
		Downloads: h.downloads,
		Cleaner:   h.cleaner,
		Store:     h.store,
		Reporter:  h.reporter,
		Metrics:   metrics.New(),
		Clock:     h.clock,
	})
}

func TestNextExpected(t *testing.T) {
	tests := []struct {
		cur  string
		next string
		out  Outcome
	}{
		{"2021-09-08T10:00:00Z", "2021-09-08T10:15:00Z", Continue},
		{"2021-09-08T22:30:00Z", "2021-09-08T22:45:00Z", Continue},
		{"2021-09-08T22:45:00Z", "2021-09-09T00:00:00Z", InGap},
		{"2021-09-08T23:10:00Z", "2021-09-09T00:00:00Z", InGap},
		{"2021-09-30T22:45:00Z", "2021-10-01T00:00:00Z", InGap},
		{"2021-12-31T22:45:00Z", "2022-01-01T00:00:00Z", InGap},
		{"2021-09-09T00:00:00Z", "2021-09-09T00:15:00Z", Continue},
	}
	for _, tt := range tests {
		t.Run(tt.cur, func(t *testing.T) {
			next, out := NextExpected(at(tt.cur))
			assert.Equal(t, at(tt.next), next)
			assert.Equal(t, tt.out, out)
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "Continue", Continue.String())
	assert.Equal(t, "InGap", InGap.String())
	assert.Equal(t, "TooEarly", TooEarly.String())
	assert.Equal(t, "TooLate", TooLate.String())
	assert.Equal(t, "Finished", Finished.String())
	assert.Equal(t, "Unknown", Outcome(42).String())
	assert.True(t, TooLate.Terminal())
	assert.True(t, Finished.Terminal())
	assert.False(t, TooEarly.Terminal())
}

func TestParseUnitAndWindows(t *testing.T) {
	for in, want := range map[string]Unit{"": UnitFile, "file": UnitFile, "Hours": UnitHour, "day": UnitDay} {
		u, err := ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, u, in)
	}
	_, err := ParseUnit("week")
	assert.Error(t, err)

	n, err := Windows(3, UnitFile)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = Windows(2, UnitHour)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	n, err = Windows(1, UnitDay)
	require.NoError(t, err)
	assert.Equal(t, 92, n)
	_, err = Windows(0, UnitDay)
	assert.Error(t, err)
}

func step(t *testing.T, s *Scheduler) Outcome {
	t.Helper()
	out, err := s.Step(context.Background())
	require.NoError(t, err)
	return out
}

func TestStep_TooEarlyKeepsWindow(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	s := h.scheduler(Config{Windows: 3})

	assert.Equal(t, Continue, step(t, s))
	assert.Equal(t, 2, s.Remaining())
	assert.Equal(t, at("2021-09-08T10:15:00Z"), s.ExpectedNext())

	assert.Equal(t, TooEarly, step(t, s))
	assert.Equal(t, 2, s.Remaining())
	assert.Len(t, h.store.loads, 3, "too early does not ingest")
}

func TestStep_TooLate(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"), at("2021-09-08T10:30:00Z"))
	s := h.scheduler(Config{Windows: 5})

	assert.Equal(t, Continue, step(t, s))
	assert.Equal(t, TooLate, step(t, s))
	assert.Equal(t, 4, s.Remaining())
}

func TestStep_GapBoundary(t *testing.T) {
	h := newHarness(at("2021-09-08T22:46:00Z"), at("2021-09-08T22:45:00Z"), at("2021-09-09T00:00:00Z"))
	s := h.scheduler(Config{Windows: 3})

	assert.Equal(t, InGap, step(t, s))
	assert.Equal(t, at("2021-09-09T00:00:00Z"), s.ExpectedNext())
	assert.Equal(t, Continue, step(t, s))
	assert.Equal(t, at("2021-09-09T00:15:00Z"), s.ExpectedNext())
}

func TestRun_ContinueTooEarlyFinished(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"),
		at("2021-09-08T10:00:00Z"),
		at("2021-09-08T10:00:00Z"),
		at("2021-09-08T10:15:00Z"),
	)
	s := h.scheduler(Config{Windows: 2})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 14, h.clock.count(time.Minute), "waits to 10:15 in one-minute steps")
	assert.Equal(t, 1, h.clock.count(30*time.Second), "one early backoff")
	assert.Len(t, h.clock.sleeps, 15)

	require.Len(t, h.store.clears, 3, "realtime tables cleared on the first cycle only")
	for i, k := range schema.AllKinds {
		assert.Equal(t, store.Target{Kind: k, Mode: workspace.Realtime}, h.store.clears[i])
	}
	assert.Len(t, h.store.loads, 6)
	assert.Contains(t, h.store.loads, "/clean/20210908101500.gkg.json")

	require.Equal(t, 1, h.reporter.calls)
	sum := h.reporter.got[0]
	assert.Equal(t, 2, sum.Cycles)
	assert.Equal(t, 6, sum.Files)
	assert.Equal(t, int64(60), sum.Records)
	assert.Equal(t, at("2021-09-08T10:00:00Z"), sum.First)
	assert.Equal(t, at("2021-09-08T10:15:00Z"), sum.Last)
	assert.Equal(t, 0, s.Remaining())
}

func TestRun_AcrossGap(t *testing.T) {
	h := newHarness(at("2021-09-08T22:46:00Z"), at("2021-09-08T22:45:00Z"), at("2021-09-09T00:00:00Z"))
	s := h.scheduler(Config{Windows: 2, Tables: []schema.Kind{schema.Events}})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 74, h.clock.count(time.Minute))
	assert.Equal(t, at("2021-09-09T00:00:00Z"), h.clock.now)
	assert.Equal(t, []string{
		"/clean/20210908224500.export.json",
		"/clean/20210909000000.export.json",
	}, h.store.loads)
}

func TestRun_TooLate(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"), at("2021-09-08T10:30:00Z"))
	s := h.scheduler(Config{Windows: 5})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLate))
	assert.Zero(t, h.reporter.calls)
}

func TestRun_StallsAfterMaxEarlyRetries(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	s := h.scheduler(Config{Windows: 2, MaxEarlyRetries: 3, EarlyBackoff: 10 * time.Second})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStalled))
	assert.Equal(t, 3, h.clock.count(10*time.Second))
	assert.Equal(t, 1, s.Remaining())
}

func TestRun_ManifestErrorRetried(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), time.Time{}, at("2021-09-08T10:00:00Z"))
	s := h.scheduler(Config{Windows: 1})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, h.clock.count(30*time.Second))
	assert.Len(t, h.store.loads, 3)
	assert.Equal(t, 1, h.reporter.calls)
}

func TestRun_TransportFailureSkipsTable(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	h.downloads.fail[schema.GKG] = true
	s := h.scheduler(Config{Windows: 1})

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, h.downloads.urls, 3)
	assert.Equal(t, []string{
		"/clean/20210908100000.export.json",
		"/clean/20210908100000.mentions.json",
	}, h.store.loads)
	assert.Equal(t, 1, h.reporter.got[0].Skipped)
	assert.Equal(t, 2, h.reporter.got[0].Files)
}

func TestRun_CleanOutcomes(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	h.cleaner.status[schema.Events] = cleaner.Result{
		Status: cleaner.Skipped, Reason: cleaner.ReasonAlreadyClean, CleanPath: "/clean/already.json",
	}
	h.cleaner.status[schema.Mentions] = cleaner.Result{Status: cleaner.Skipped, Reason: cleaner.ReasonNotFound}
	h.cleaner.status[schema.GKG] = cleaner.Result{Status: cleaner.Failed, Reason: "line too long", Dropped: 4}
	s := h.scheduler(Config{Windows: 1})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"/clean/already.json"}, h.store.loads)
	sum := h.reporter.got[0]
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, int64(4), sum.Dropped)
}

func TestRun_StoreErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"), at("2021-09-08T10:15:00Z"))
	h.store.err = store.ErrUnavailable
	s := h.scheduler(Config{Windows: 2})

	require.NoError(t, s.Run(context.Background()))
	sum := h.reporter.got[0]
	assert.Equal(t, 2, sum.Cycles)
	assert.Equal(t, 6, sum.Skipped)
	assert.Zero(t, sum.Files)
}

func TestRun_FallbackWaitWhenBehind(t *testing.T) {
	// Started well after the expected follow-up; each store takes a minute.
	h := newHarness(at("2021-09-08T10:20:00Z"), at("2021-09-08T10:00:00Z"), at("2021-09-08T10:15:00Z"))
	h.store.onLoad = func() { h.clock.now = h.clock.now.Add(time.Minute) }
	s := h.scheduler(Config{Windows: 2})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 12, h.clock.count(time.Minute), "cadence minus the three-minute cycle")
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	err := h.scheduler(Config{Windows: 2}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.manifests.calls)
}

func TestRun_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	h.clock.onSleep = cancel

	err := h.scheduler(Config{Windows: 2}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.store.loads, 3)
	assert.Empty(t, h.clock.sleeps)
}

func TestRun_CancelledMidCycleIsNotFinished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	h.store.onLoad = cancel
	s := h.scheduler(Config{Windows: 1})

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.store.loads, 1, "remaining tables are not ingested")
	assert.Zero(t, h.reporter.calls)
	assert.Equal(t, 1, s.Remaining())
	assert.Zero(t, s.Summary().Cycles)
}

func TestStep_CancelledMidCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(at("2021-09-08T10:01:00Z"), at("2021-09-08T10:00:00Z"))
	h.store.onLoad = cancel
	s := h.scheduler(Config{Windows: 3})

	_, err := s.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, s.Remaining())
	assert.True(t, s.ExpectedNext().IsZero())
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{}
	c.applyDefaults()
	assert.Equal(t, schema.AllKinds, c.Tables)
	assert.Equal(t, 1, c.Windows)
	assert.Equal(t, 30*time.Second, c.EarlyBackoff)
	assert.Equal(t, 20, c.MaxEarlyRetries)
	assert.Equal(t, time.Minute, c.Tick)
}

func TestLogReporter(t *testing.T) {
	assert.NoError(t, LogReporter{}.Report(context.Background(), Summary{Cycles: 1}))
}
