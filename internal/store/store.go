// Package store persists clean records and the ingest run log. Postgres is
// the primary backend; SQLite serves local runs and "none" discards writes.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdelt-ingest/internal/db"
	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/resilience"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// ErrUnavailable marks a write or clear that failed because the backend
// could not be reached. Callers report it and move on.
var ErrUnavailable = eris.New("store: backend unavailable")

// IsUnavailable reports whether err is (or wraps) ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// unavailable tags transient backend failures with ErrUnavailable and
// passes everything else through.
func unavailable(err error, action string) error {
	if err == nil {
		return nil
	}
	if resilience.IsTransient(err) {
		return eris.Wrapf(ErrUnavailable, "%s: %v", action, err)
	}
	return eris.Wrap(err, action)
}

// Target is one destination table: a record kind in batch or realtime mode.
type Target struct {
	Kind schema.Kind
	Mode workspace.Mode
}

// Table returns the unqualified table name, e.g. "gkg" or "gkg_realtime".
func (t Target) Table() string {
	if t.Mode == workspace.Realtime {
		return t.Kind.String() + "_realtime"
	}
	return t.Kind.String()
}

func (t Target) String() string { return t.Table() }

// Targets lists every table a backend must provide.
func Targets() []Target {
	var out []Target
	for _, m := range []workspace.Mode{workspace.Batch, workspace.Realtime} {
		for _, k := range schema.AllKinds {
			out = append(out, Target{Kind: k, Mode: m})
		}
	}
	return out
}

// Sink receives clean records.
type Sink interface {
	// Write appends records to the target and returns the number stored.
	Write(ctx context.Context, t Target, records []model.Record) (int64, error)
	// Clear removes every record of the target.
	Clear(ctx context.Context, t Target) error
	// Reindex rebuilds the target's indexes after a bulk load.
	Reindex(ctx context.Context, t Target) error
}

// RunStatus is the lifecycle state of an ingest run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunEntry is one row of the ingest run log.
type RunEntry struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Tables      string     `json:"tables"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Files       int64      `json:"files"`
	Records     int64      `json:"records"`
	Error       string     `json:"error,omitempty"`
}

// RunResult is passed to CompleteRun.
type RunResult struct {
	Files   int64
	Records int64
}

// RunLog records batch and realtime runs.
type RunLog interface {
	StartRun(ctx context.Context, mode workspace.Mode, tables []schema.Kind) (string, error)
	CompleteRun(ctx context.Context, id string, result RunResult) error
	FailRun(ctx context.Context, id string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]RunEntry, error)
}

// Store is a full backend.
type Store interface {
	Sink
	RunLog
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string
	DatabaseURL string
	Pool        db.PoolConfig
}

// Open connects the configured backend. It does not migrate.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver needs a database url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case "sqlite":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: sqlite driver needs a database path")
		}
		return NewSQLite(cfg.DatabaseURL)
	case "none", "":
		return NewNone(), nil
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: postgres, sqlite, none)", cfg.Driver)
	}
}

func joinKinds(kinds []schema.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}

func checkKinds(t Target, records []model.Record) error {
	for _, r := range records {
		if r.Table() != t.Kind {
			return eris.Errorf("store: %s record written to %s", r.Table(), t.Table())
		}
	}
	return nil
}
