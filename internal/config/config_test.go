package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://data.gdeltproject.org/gdeltv2/", cfg.Feed.BaseURL)
	assert.Equal(t, "http://data.gdeltproject.org/gdeltv2/lastupdate.txt", cfg.Feed.ManifestURL)
	assert.Equal(t, 60, cfg.Feed.TimeoutSecs)
	assert.Equal(t, 3, cfg.Feed.MaxRetries)
	assert.Equal(t, "./GDELTdata", cfg.Data.Dir)
	assert.Equal(t, 2, cfg.Clean.Workers)
	assert.False(t, cfg.Clean.DeleteRaw)
	assert.Equal(t, 30, cfg.Realtime.EarlyBackoffSecs)
	assert.Equal(t, 20, cfg.Realtime.MaxEarlyRetries)
	assert.Equal(t, 60, cfg.Realtime.TickSecs)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5000, cfg.Store.BatchSize)
	assert.Equal(t, int32(4), cfg.Store.Pool.MaxConns)
	assert.Equal(t, 5, cfg.Store.BreakerThreshold)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
feed:
  base_url: http://mirror.example/gdeltv2
store:
  driver: sqlite
  database_url: gdelt.db
clean:
  workers: 6
  delete_raw: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gdelt.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 6, cfg.Clean.Workers)
	assert.True(t, cfg.Clean.DeleteRaw)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "http://mirror.example/gdeltv2/lastupdate.txt", cfg.Feed.ManifestURL)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Realtime.MaxEarlyRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GDELT_STORE_DRIVER", "postgres")
	t.Setenv("GDELT_LOG_LEVEL", "warn")
	t.Setenv("GDELT_FEED_MANIFEST_URL", "http://mirror.example/last.txt")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "http://mirror.example/last.txt", cfg.Feed.ManifestURL)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GDELT_REALTIME_MAX_EARLY_RETRIES", "5")
	t.Setenv("GDELT_DATA_DIR", "/var/lib/gdelt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Realtime.MaxEarlyRetries)
	assert.Equal(t, "/var/lib/gdelt", cfg.Data.Dir)
}

func TestLoadBadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("feed: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Feed.BaseURL = "http://data.gdeltproject.org/gdeltv2/"
	cfg.Feed.TimeoutSecs = 60
	cfg.Data.Dir = "./GDELTdata"
	cfg.Clean.Workers = 2
	cfg.Realtime.EarlyBackoffSecs = 30
	cfg.Realtime.MaxEarlyRetries = 20
	cfg.Store.Driver = "none"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"batch", "clean", "store", "realtime", "files", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.NoError(t, cfg.Validate("clean"), "clean never touches the store")

	cfg.Store.DatabaseURL = "postgres://localhost/gdelt"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be")
}

func TestValidateWorkersAndRealtime(t *testing.T) {
	cfg := validDefaults()
	cfg.Clean.Workers = 0
	cfg.Realtime.MaxEarlyRetries = 0

	err := cfg.Validate("realtime")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clean.workers must be between 1 and 64")
	assert.Contains(t, err.Error(), "realtime.max_early_retries must be > 0")

	err = cfg.Validate("batch")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "realtime")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, "./GDELTdata", cfg.Data.Dir)
	assert.Equal(t, 20, cfg.Realtime.MaxEarlyRetries)
	assert.Equal(t, "postgres", cfg.Store.Driver)

	err = WriteDefault(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
