package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gdelt-ingest/internal/db"
	"github.com/sells-group/gdelt-ingest/internal/metrics"
)

// Config holds the full application configuration.
type Config struct {
	Feed     FeedConfig     `yaml:"feed" mapstructure:"feed"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Clean    CleanConfig    `yaml:"clean" mapstructure:"clean"`
	Realtime RealtimeConfig `yaml:"realtime" mapstructure:"realtime"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Metrics  metrics.Config `yaml:"metrics" mapstructure:"metrics"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// FeedConfig configures the upstream GDELT endpoints and HTTP client.
type FeedConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	ManifestURL string  `yaml:"manifest_url" mapstructure:"manifest_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Timeout returns TimeoutSecs as a duration.
func (f FeedConfig) Timeout() time.Duration { return time.Duration(f.TimeoutSecs) * time.Second }

// DataConfig locates the local file tree.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CleanConfig configures raw-to-clean conversion.
type CleanConfig struct {
	Workers   int  `yaml:"workers" mapstructure:"workers"`
	DeleteRaw bool `yaml:"delete_raw" mapstructure:"delete_raw"`
}

// RealtimeConfig configures the polling loop.
type RealtimeConfig struct {
	EarlyBackoffSecs int `yaml:"early_backoff_secs" mapstructure:"early_backoff_secs"`
	MaxEarlyRetries  int `yaml:"max_early_retries" mapstructure:"max_early_retries"`
	TickSecs         int `yaml:"tick_secs" mapstructure:"tick_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
	// BreakerThreshold is the count of consecutive unavailable errors that
	// opens the circuit.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func newViper() *viper.Viper {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GDELT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("feed.base_url", "http://data.gdeltproject.org/gdeltv2/")
	v.SetDefault("feed.manifest_url", "")
	v.SetDefault("feed.user_agent", "gdelt-ingest/1.0")
	v.SetDefault("feed.timeout_secs", 60)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.rate_limit", 4.0)
	v.SetDefault("data.dir", "./GDELTdata")
	v.SetDefault("clean.workers", 2)
	v.SetDefault("clean.delete_raw", false)
	v.SetDefault("realtime.early_backoff_secs", 30)
	v.SetDefault("realtime.max_early_retries", 20)
	v.SetDefault("realtime.tick_secs", 60)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.batch_size", 5000)
	v.SetDefault("store.pool.max_conns", 4)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("store.breaker_threshold", 5)
	v.SetDefault("store.breaker_reset_secs", 30)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	return v
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := newViper()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Feed.ManifestURL == "" {
		base := cfg.Feed.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		cfg.Feed.ManifestURL = base + "lastupdate.txt"
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is the command
// name: batch, clean, store, realtime, files or migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "batch", "realtime":
		needStore = true
		if c.Feed.BaseURL == "" {
			errs = append(errs, "feed.base_url is required")
		}
		if c.Feed.TimeoutSecs <= 0 {
			errs = append(errs, "feed.timeout_secs must be > 0")
		}
	case "store", "migrate":
		needStore = true
	case "clean", "files":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Data.Dir == "" {
		errs = append(errs, "data.dir is required")
	}
	if c.Clean.Workers < 1 || c.Clean.Workers > 64 {
		errs = append(errs, "clean.workers must be between 1 and 64")
	}
	if mode == "realtime" {
		if c.Realtime.EarlyBackoffSecs <= 0 {
			errs = append(errs, "realtime.early_backoff_secs must be > 0")
		}
		if c.Realtime.MaxEarlyRetries <= 0 {
			errs = append(errs, "realtime.max_early_retries must be > 0")
		}
	}
	if needStore {
		switch c.Store.Driver {
		case "postgres", "postgresql", "sqlite":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for driver "+c.Store.Driver)
			}
		case "none":
		default:
			errs = append(errs, "store.driver must be postgres, sqlite or none")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to path, refusing
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		return eris.Wrap(err, "config: unmarshal defaults")
	}
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrap(err, "config: write default")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
