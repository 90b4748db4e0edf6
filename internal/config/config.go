// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// EnvPrefix is prepended to environment overrides, e.g. FILMMETA_SCRAPE_WORKERS.
const EnvPrefix = "FILMMETA"

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Input   InputConfig   `mapstructure:"input"`
	Output  OutputConfig  `mapstructure:"output"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ScrapeConfig governs fetching and scheduling.
type ScrapeConfig struct {
	Workers        int           `mapstructure:"workers"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	DelayMin       time.Duration `mapstructure:"delay_min"`
	DelayMax       time.Duration `mapstructure:"delay_max"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Limit          int           `mapstructure:"limit"`
	ShowProgress   bool          `mapstructure:"show_progress"`
}

// InputConfig points at the batch CSV.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig names the aggregated output file.
type OutputConfig struct {
	Directory        string `mapstructure:"directory"`
	Prefix           string `mapstructure:"prefix"`
	UseDatetimeStamp bool   `mapstructure:"use_datetime_stamp"`
	Format           string `mapstructure:"format"`
}

// StorageConfig selects where the output file is written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls the optional downstream catalog. Empty DSN disables it.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	RunsTable    string `mapstructure:"runs_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds batch notification settings. Empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and the environment.
// It does not validate; callers apply their overrides and then call Validate.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &crawler.InputError{Msg: "read config " + path, Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &crawler.InputError{Msg: "unmarshal config", Err: err}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.workers", 8)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("scrape.timeout", 10*time.Second)
	v.SetDefault("scrape.delay_min", 250*time.Millisecond)
	v.SetDefault("scrape.delay_max", 750*time.Millisecond)
	v.SetDefault("scrape.rate_limit_rps", 0.0)
	v.SetDefault("scrape.rate_limit_burst", 1)
	v.SetDefault("scrape.limit", 0)
	v.SetDefault("scrape.show_progress", true)
	v.SetDefault("input.path", "")
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.prefix", "movie_collection_meta")
	v.SetDefault("output.use_datetime_stamp", false)
	v.SetDefault("output.format", FormatJSON)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "media_records")
	v.SetDefault("db.runs_table", "batch_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. Failures are
// InputErrors.
func (c Config) Validate() error {
	switch {
	case c.Scrape.Workers <= 0:
		return crawler.NewInputError("scrape.workers must be > 0, got %d", c.Scrape.Workers)
	case c.Scrape.Timeout <= 0:
		return crawler.NewInputError("scrape.timeout must be > 0")
	case c.Scrape.DelayMin < 0 || c.Scrape.DelayMax < c.Scrape.DelayMin:
		return crawler.NewInputError("scrape.delay_min/delay_max must satisfy 0 <= min <= max, got %s/%s",
			c.Scrape.DelayMin, c.Scrape.DelayMax)
	case c.Scrape.RateLimitRPS < 0:
		return crawler.NewInputError("scrape.rate_limit_rps must be >= 0")
	case c.Scrape.Limit < 0:
		return crawler.NewInputError("scrape.limit must be >= 0")
	case strings.TrimSpace(c.Output.Prefix) == "":
		return crawler.NewInputError("output.prefix is required")
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return crawler.NewInputError("server.port must be between 0 and 65535")
	}

	switch c.Output.Format {
	case FormatJSON, FormatYAML:
	default:
		return crawler.NewInputError("output.format must be %q or %q, got %q", FormatJSON, FormatYAML, c.Output.Format)
	}

	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Output.Directory) == "" {
			return crawler.NewInputError("output.directory is required for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return crawler.NewInputError("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return crawler.NewInputError("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return crawler.NewInputError("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// CatalogEnabled reports whether records should be sent to the catalog.
func (c Config) CatalogEnabled() bool {
	return strings.TrimSpace(c.DB.DSN) != ""
}

// NotifyEnabled reports whether batch notifications should be published.
func (c Config) NotifyEnabled() bool {
	return c.PubSub.TopicName != ""
}
