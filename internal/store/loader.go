package store

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// DefaultBatchSize is the number of records per Write call.
const DefaultBatchSize = 5000

// Files is the part of the workspace the loader reads from.
type Files interface {
	List(k schema.Kind, s workspace.State) []string
	Path(k schema.Kind, s workspace.State, name string) string
}

// Loader streams clean JSON documents into a Sink in fixed-size batches.
type Loader struct {
	sink      Sink
	batchSize int
}

// NewLoader creates a Loader. batchSize <= 0 uses DefaultBatchSize.
func NewLoader(sink Sink, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{sink: sink, batchSize: batchSize}
}

// Clear empties the target.
func (l *Loader) Clear(ctx context.Context, t Target) error {
	return l.sink.Clear(ctx, t)
}

// LoadFile writes every record of one clean file and returns the number
// stored. Batches written before a failure stay written.
func (l *Loader) LoadFile(ctx context.Context, t Target, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "store: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var stored int64
	_, err = model.DecodeBatches(t.Kind, f, l.batchSize, func(records []model.Record) error {
		n, err := l.sink.Write(ctx, t, records)
		stored += n
		return err
	})
	if err != nil {
		return stored, eris.Wrapf(err, "store: load %s", path)
	}
	return stored, nil
}

// LoadSummary totals a LoadAll call.
type LoadSummary struct {
	Files   int
	Failed  int
	Records int64
	Elapsed time.Duration
}

// LoadAll loads every clean file of the target's mode, continuing past
// per-file failures, and reindexes when reindex is set.
func (l *Loader) LoadAll(ctx context.Context, files Files, t Target, reindex bool) (LoadSummary, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "store"), zap.String("table", t.Table()))

	var sum LoadSummary
	for _, name := range files.List(t.Kind, workspace.CleanState(t.Mode)) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		n, err := l.LoadFile(ctx, t, files.Path(t.Kind, workspace.CleanState(t.Mode), name))
		sum.Records += n
		if err != nil {
			sum.Failed++
			log.Error("load failed", zap.String("file", name), zap.Error(err))
			continue
		}
		sum.Files++
		log.Debug("loaded", zap.String("file", name), zap.Int64("records", n))
	}

	if reindex && sum.Files > 0 {
		if err := l.sink.Reindex(ctx, t); err != nil {
			log.Warn("reindex failed", zap.Error(err))
		}
	}
	sum.Elapsed = time.Since(start)
	log.Info("table stored",
		zap.Int("files", sum.Files),
		zap.Int("failed", sum.Failed),
		zap.Int64("records", sum.Records),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}
