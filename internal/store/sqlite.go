package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteType(t schema.Type) string {
	switch t {
	case schema.Integer, schema.Boolean:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	case schema.Timestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqliteTableDDL derives a table definition from the kept columns of the
// target's layout.
func sqliteTableDDL(t Target) (string, error) {
	layout, err := schema.For(t.Kind)
	if err != nil {
		return "", err
	}
	cols := layout.KeptColumns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("\t%s %s", quote(strings.ToLower(c.Name)), sqliteType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);\n", quote(t.Table()), strings.Join(defs, ",\n")), nil
}

const sqliteRunsDDL = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id           TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	tables       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	files        INTEGER NOT NULL DEFAULT 0,
	records      INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

// Migrate creates the record tables and the run log.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	var b strings.Builder
	for _, t := range Targets() {
		ddl, err := sqliteTableDDL(t)
		if err != nil {
			return err
		}
		b.WriteString(ddl)
	}
	b.WriteString(sqliteRunsDDL)
	_, err := s.db.ExecContext(ctx, b.String())
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write inserts records in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, t Target, records []model.Record) (int64, error) {
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
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(t.Table()),
		strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable(err, "sqlite: begin "+t.Table())
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, unavailable(err, "sqlite: prepare "+t.Table())
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Values()...); err != nil {
			return 0, unavailable(err, "sqlite: insert "+t.Table())
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable(err, "sqlite: commit "+t.Table())
	}
	return int64(len(records)), nil
}

// Clear deletes every row of the target.
func (s *SQLiteStore) Clear(ctx context.Context, t Target) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+quote(t.Table()))
	return unavailable(err, "sqlite: clear "+t.Table())
}

// Reindex rebuilds the target's indexes.
func (s *SQLiteStore) Reindex(ctx context.Context, t Target) error {
	_, err := s.db.ExecContext(ctx, "REINDEX "+quote(t.Table()))
	return unavailable(err, "sqlite: reindex "+t.Table())
}

// StartRun inserts a running entry and returns its ID.
func (s *SQLiteStore) StartRun(ctx context.Context, mode workspace.Mode, tables []schema.Kind) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, mode, tables, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, mode.String(), joinKinds(tables), string(RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start %s run", mode)
	}
	return id, nil
}

// CompleteRun marks a run complete with its totals.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, result RunResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, files = ?, records = ? WHERE id = ?`,
		string(RunComplete), time.Now().UTC(), result.Files, result.Records, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

// FailRun marks a run failed.
func (s *SQLiteStore) FailRun(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, tables, status, started_at, completed_at, files, records, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var status string
		var completedAt sql.NullTime
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Mode, &e.Tables, &status, &e.StartedAt, &completedAt, &e.Files, &e.Records, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		e.Status = RunStatus(status)
		if completedAt.Valid {
			ts := completedAt.Time
			e.CompletedAt = &ts
		}
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
