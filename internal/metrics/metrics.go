// Package metrics exposes ingest counters over a Prometheus endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Namespace prefixes every metric name.
const Namespace = "gdelt_ingest"

// Config controls the metrics endpoint.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":9090"
	}
}

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	files       *prometheus.CounterVec
	records     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	cycles      *prometheus.CounterVec
	cleanTime   *prometheus.HistogramVec
	lastArrival *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "files_total",
			Help:      "Snapshot files handled, by table, stage and status.",
		}, []string{"table", "stage", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_total",
			Help:      "Records cleaned or stored, by table and stage.",
		}, []string{"table", "stage"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dropped_rows_total",
			Help:      "Raw rows dropped as malformed, by table.",
		}, []string{"table"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "realtime_cycles_total",
			Help:      "Realtime polling cycles, by outcome.",
		}, []string{"outcome"}),
		cleanTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "clean_duration_seconds",
			Help:      "Time to clean one snapshot file.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"table"}),
		lastArrival: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time of the newest snapshot processed, by table.",
		}, []string{"table"}),
	}
	m.registry.MustRegister(
		m.files, m.records, m.dropped, m.cycles, m.cleanTime, m.lastArrival,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Stages label the pipeline step a file or record count belongs to.
const (
	StageDownload = "download"
	StageClean    = "clean"
	StageStore    = "store"
)

// File counts one file at a stage.
func (m *Metrics) File(table, stage, status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(table, stage, status).Inc()
}

// Records adds n records at a stage.
func (m *Metrics) Records(table, stage string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(table, stage).Add(float64(n))
}

// Dropped adds n malformed rows.
func (m *Metrics) Dropped(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(table).Add(float64(n))
}

// CleanDuration observes one clean.
func (m *Metrics) CleanDuration(table string, d time.Duration) {
	if m == nil {
		return
	}
	m.cleanTime.WithLabelValues(table).Observe(d.Seconds())
}

// Cycle counts one realtime cycle outcome.
func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

// Snapshot records the timestamp of the newest processed snapshot.
func (m *Metrics) Snapshot(table string, ts time.Time) {
	if m == nil {
		return
	}
	m.lastArrival.WithLabelValues(table).Set(float64(ts.Unix()))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve runs the metrics endpoint until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	zap.L().Info("metrics server listening", zap.String("component", "metrics"), zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "metrics: shutdown")
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "metrics: serve")
	}
}
