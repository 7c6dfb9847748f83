package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/gdelt-ingest/internal/cleaner"
	"github.com/sells-group/gdelt-ingest/internal/feed"
	"github.com/sells-group/gdelt-ingest/internal/fetcher"
	"github.com/sells-group/gdelt-ingest/internal/metrics"
	"github.com/sells-group/gdelt-ingest/internal/resilience"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// env is built once per command and passed to the components explicitly.
type env struct {
	Workspace  *workspace.Workspace
	Feed       *feed.Feed
	Downloader *feed.Downloader
	Cleaner    *cleaner.Cleaner
	Store      store.Store
	Sink       *store.Guarded
	Loader     *store.Loader
	Metrics    *metrics.Metrics
}

// envOpts selects the optional parts of an env.
type envOpts struct {
	Store bool
	Feed  bool
}

func initEnv(ctx context.Context, opts envOpts) (*env, error) {
	ws, err := workspace.Open(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}
	e := &env{
		Workspace: ws,
		Cleaner:   cleaner.New(ws),
	}
	if cfg.Metrics.Enabled {
		e.Metrics = metrics.New()
	}

	if opts.Feed {
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.Feed.UserAgent,
			Timeout:      cfg.Feed.Timeout(),
			MaxRetries:   cfg.Feed.MaxRetries,
			RateLimiters: feedLimiters(cfg.Feed.BaseURL, cfg.Feed.RateLimit),
		})
		e.Feed = feed.New(f, cfg.Feed.BaseURL, cfg.Feed.ManifestURL)
		e.Downloader = feed.NewDownloader(f, ws)
	}

	if opts.Store {
		st, err := store.Open(ctx, store.Config{
			Driver:      cfg.Store.Driver,
			DatabaseURL: cfg.Store.DatabaseURL,
			Pool:        cfg.Store.Pool,
		})
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		e.Store = st
		e.Sink = store.Guard(st,
			resilience.NewBreakerConfig(cfg.Store.BreakerThreshold, time.Duration(cfg.Store.BreakerResetSecs)*time.Second),
			resilience.RetryConfig{MaxAttempts: cfg.Store.RetryAttempts},
		)
		e.Loader = store.NewLoader(e.Sink, cfg.Store.BatchSize)
	}
	return e, nil
}

// Close releases the store.
func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// serveMetrics starts the metrics endpoint in the background when enabled.
func (e *env) serveMetrics(ctx context.Context) {
	if e.Metrics == nil {
		return
	}
	c := cfg.Metrics
	c.ApplyDefaults()
	go func() {
		if err := e.Metrics.Serve(ctx, c.Address); err != nil {
			zap.L().Error("metrics server", zap.Error(err))
		}
	}()
}

// feedLimiters rate limits a mirror host. The public GDELT host has its own
// adaptive limiter inside the fetcher.
func feedLimiters(baseURL string, perSec float64) map[string]*rate.Limiter {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || u.Host == fetcher.GDELTHost || perSec <= 0 {
		return nil
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return map[string]*rate.Limiter{u.Host: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// trackRun wraps fn in a run log entry. Run log failures are logged, never
// returned.
func trackRun(ctx context.Context, rl store.RunLog, mode workspace.Mode, tables []schema.Kind, fn func() (store.RunResult, error)) error {
	log := zap.L().With(zap.String("component", "runlog"))
	id, err := rl.StartRun(ctx, mode, tables)
	if err != nil {
		log.Warn("start run failed", zap.Error(err))
	}

	res, runErr := fn()
	if id == "" {
		return runErr
	}

	// The command context may already be cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if runErr != nil {
		if err := rl.FailRun(finishCtx, id, runErr.Error()); err != nil {
			log.Warn("fail run failed", zap.String("run_id", id), zap.Error(err))
		}
		return runErr
	}
	if err := rl.CompleteRun(finishCtx, id, res); err != nil {
		log.Warn("complete run failed", zap.String("run_id", id), zap.Error(err))
	}
	return nil
}

func parseTables(s string) ([]schema.Kind, error) {
	kinds, err := schema.ParseKinds(s)
	if err != nil {
		return nil, eris.Wrap(err, "parse --tables")
	}
	return kinds, nil
}
