package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/config"
	"github.com/sells-group/gdelt-ingest/internal/fetcher"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"batch", "clean", "store", "realtime", "files", "migrate", "runs", "init-config"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "gdelt-ingest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestBatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"dates", "tables", "workers", "delete-raw", "no-store", "reload"} {
		require.NotNil(t, batchCmd.Flags().Lookup(name), "batch should have --%s", name)
	}
	assert.Equal(t, "0", batchCmd.Flags().Lookup("workers").DefValue)
}

func TestRealtimeCommand_Flags(t *testing.T) {
	flag := realtimeCmd.Flags().Lookup("window")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)

	flag = realtimeCmd.Flags().Lookup("unit")
	require.NotNil(t, flag)
	assert.Equal(t, "file", flag.DefValue)
}

func TestFilesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range filesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["wipe"])
	assert.Equal(t, "clean", filesWipeCmd.Flags().Lookup("state").DefValue)
}

func TestFeedLimiters(t *testing.T) {
	assert.Nil(t, feedLimiters("http://data.gdeltproject.org/gdeltv2/", 4))
	assert.Nil(t, feedLimiters("http://mirror.example/gdeltv2/", 0))
	assert.Nil(t, feedLimiters("::bad", 4))

	lims := feedLimiters("http://mirror.example:8080/gdeltv2/", 0.5)
	require.Contains(t, lims, "mirror.example:8080")
	assert.Equal(t, 1, lims["mirror.example:8080"].Burst())
	assert.Nil(t, feedLimiters("http://"+fetcher.GDELTHost+"/mirror/", 4))
}

type fakeRunLog struct {
	store.NoneStore
	startErr  error
	completed *store.RunResult
	failed    string
}

func (f *fakeRunLog) StartRun(context.Context, workspace.Mode, []schema.Kind) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-1", nil
}

func (f *fakeRunLog) CompleteRun(_ context.Context, _ string, res store.RunResult) error {
	f.completed = &res
	return nil
}

func (f *fakeRunLog) FailRun(_ context.Context, _ string, msg string) error {
	f.failed = msg
	return nil
}

func TestTrackRun(t *testing.T) {
	ctx := context.Background()

	rl := &fakeRunLog{}
	err := trackRun(ctx, rl, workspace.Batch, schema.AllKinds, func() (store.RunResult, error) {
		return store.RunResult{Files: 3, Records: 30}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, rl.completed)
	assert.Equal(t, int64(30), rl.completed.Records)

	rl = &fakeRunLog{}
	boom := errors.New("feed stalled")
	err = trackRun(ctx, rl, workspace.Realtime, schema.AllKinds, func() (store.RunResult, error) {
		return store.RunResult{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "feed stalled", rl.failed)
	assert.Nil(t, rl.completed)

	rl = &fakeRunLog{startErr: errors.New("db down")}
	err = trackRun(ctx, rl, workspace.Batch, schema.AllKinds, func() (store.RunResult, error) {
		return store.RunResult{Files: 1}, nil
	})
	require.NoError(t, err, "run log failures never fail the command")
	assert.Nil(t, rl.completed)
}

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2021, 9, 8, 10, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	var buf bytes.Buffer
	formatRunsList(&buf, []store.RunEntry{
		{ID: "0123456789abcdef", Mode: "batch", Tables: "events", Status: store.RunComplete,
			StartedAt: started, CompletedAt: &done, Files: 92, Records: 1000},
		{ID: "abc", Mode: "realtime", Tables: "gkg", Status: store.RunRunning, StartedAt: started},
	})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "2021-09-08 10:00")
	assert.Contains(t, out, "realtime")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestFormatFilesList(t *testing.T) {
	ws, err := workspace.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir(schema.GKG, workspace.Clean), "20210908100000.gkg.json"), []byte("[]"), 0o644))
	require.NoError(t, ws.Refresh())

	var buf bytes.Buffer
	formatFilesList(&buf, ws, workspace.ModeStates(workspace.Batch), true)
	out := buf.String()
	assert.Contains(t, out, "TABLE")
	assert.Regexp(t, `gkg\s+clean\s+1`, out)
	assert.Regexp(t, `events\s+raw\s+0`, out)
	assert.Contains(t, out, "gkg/clean:")
	assert.Contains(t, out, "20210908100000.gkg.json")
	assert.NotContains(t, out, "realtimeRaw")
}

func TestFilesWipeCommand(t *testing.T) {
	root := t.TempDir()
	ws, err := workspace.Open(root)
	require.NoError(t, err)
	for _, s := range []workspace.State{workspace.Raw, workspace.Clean, workspace.RealtimeClean} {
		require.NoError(t, os.WriteFile(filepath.Join(ws.Dir(schema.Events, s), "20210908100000.export.x"), nil, 0o644))
	}

	cfg = &config.Config{}
	cfg.Data.Dir = root
	cfg.Clean.Workers = 2
	require.NoError(t, filesWipeCmd.Flags().Set("state", "both"))
	t.Cleanup(func() { _ = filesWipeCmd.Flags().Set("state", "clean") })

	require.NoError(t, filesWipeCmd.RunE(filesWipeCmd, nil))

	ws, err = workspace.Open(root)
	require.NoError(t, err)
	assert.Zero(t, ws.Count(schema.Events, workspace.Raw))
	assert.Zero(t, ws.Count(schema.Events, workspace.Clean))
	assert.Equal(t, 1, ws.Count(schema.Events, workspace.RealtimeClean))
}

func TestCleanCommand_NoRawFiles(t *testing.T) {
	cfg = &config.Config{}
	cfg.Data.Dir = t.TempDir()
	cfg.Clean.Workers = 2
	cfg.Store.Driver = "none"

	cleanCmd.SetContext(context.Background())
	require.NoError(t, cleanCmd.RunE(cleanCmd, nil))
}

func TestMigrateCommand_SQLite(t *testing.T) {
	cfg = &config.Config{}
	cfg.Data.Dir = t.TempDir()
	cfg.Clean.Workers = 2
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = filepath.Join(t.TempDir(), "gdelt.db")

	migrateCmd.SetContext(context.Background())
	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))
	_, err := os.Stat(cfg.Store.DatabaseURL)
	assert.NoError(t, err)
}
