package store

import (
	"context"

	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// NoneStore accepts and discards everything. It backs runs that only
// produce clean files.
type NoneStore struct{}

// NewNone returns a discarding store.
func NewNone() *NoneStore { return &NoneStore{} }

func (NoneStore) Write(_ context.Context, _ Target, records []model.Record) (int64, error) {
	return int64(len(records)), nil
}

func (NoneStore) Clear(context.Context, Target) error   { return nil }
func (NoneStore) Reindex(context.Context, Target) error { return nil }
func (NoneStore) Migrate(context.Context) error         { return nil }
func (NoneStore) Close() error                          { return nil }

func (NoneStore) StartRun(context.Context, workspace.Mode, []schema.Kind) (string, error) {
	return "", nil
}

func (NoneStore) CompleteRun(context.Context, string, RunResult) error { return nil }
func (NoneStore) FailRun(context.Context, string, string) error        { return nil }

func (NoneStore) ListRuns(context.Context, int) ([]RunEntry, error) { return nil, nil }
