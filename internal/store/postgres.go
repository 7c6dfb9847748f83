package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gdelt-ingest/internal/db"
	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// pgSchema holds every table this tool owns.
const pgSchema = "gdelt"

// PostgresStore implements Store on a pgx pool. Records are loaded with COPY.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to connString.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

func qualified(t Target) string {
	return pgx.Identifier{pgSchema, t.Table()}.Sanitize()
}

// Write copies records into the target table.
func (s *PostgresStore) Write(ctx context.Context, t Target, records []model.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := checkKinds(t, records); err != nil {
		return 0, err
	}
	cols, err := model.Columns(t.Kind)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	n, err := db.CopyFrom(ctx, s.pool, pgSchema, t.Table(), cols, rows)
	if err != nil {
		return 0, unavailable(err, "postgres: write "+t.Table())
	}
	return n, nil
}

// Clear truncates the target table.
func (s *PostgresStore) Clear(ctx context.Context, t Target) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE TABLE "+qualified(t))
	return unavailable(err, "postgres: clear "+t.Table())
}

// Reindex rebuilds the target table's indexes.
func (s *PostgresStore) Reindex(ctx context.Context, t Target) error {
	_, err := s.pool.Exec(ctx, "REINDEX TABLE "+qualified(t))
	return unavailable(err, "postgres: reindex "+t.Table())
}

// Migrate applies the embedded migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close releases the pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// StartRun inserts a running entry and returns its ID.
func (s *PostgresStore) StartRun(ctx context.Context, mode workspace.Mode, tables []schema.Kind) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gdelt.ingest_runs (id, mode, tables, status, started_at)
		 VALUES ($1, $2, $3, 'running', now())`,
		id, mode.String(), joinKinds(tables),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start %s run", mode)
	}
	return id, nil
}

// CompleteRun marks a run complete with its totals.
func (s *PostgresStore) CompleteRun(ctx context.Context, id string, result RunResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE gdelt.ingest_runs
		 SET status = 'complete', completed_at = now(), files = $1, records = $2
		 WHERE id = $3`,
		result.Files, result.Records, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// FailRun marks a run failed.
func (s *PostgresStore) FailRun(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE gdelt.ingest_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", id)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, mode, tables, status, started_at, completed_at, files, records, error
		 FROM gdelt.ingest_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var status string
		var completedAt *time.Time
		var errStr *string
		if err := rows.Scan(&e.ID, &e.Mode, &e.Tables, &status, &e.StartedAt, &completedAt, &e.Files, &e.Records, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		e.Status = RunStatus(status)
		e.CompletedAt = completedAt
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
