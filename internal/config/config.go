// Package config loads ledger settings from an optional TOML file with
// LEDGER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config holds application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	GCS     GCSConfig     `mapstructure:"gcs"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Log     LogConfig     `mapstructure:"log"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	UI      UIConfig      `mapstructure:"ui"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StorageConfig selects and locates the store backend.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	BigQueryProject string `mapstructure:"bigquery_project"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`
}

// GCSConfig names the statement archive bucket. Empty disables archiving.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LLMConfig holds category suggestion settings.
type LLMConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	Model     string `mapstructure:"model"`
}

// APIKey reads the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JobsConfig sizes the background repair queue.
type JobsConfig struct {
	Buffer     int `mapstructure:"buffer"`
	Workers    int `mapstructure:"workers"`
	MaxRetries int `mapstructure:"max_retries"`
	// EmptySessionGrace is how old an empty upload session must be before
	// a sweep deletes it.
	EmptySessionGrace time.Duration `mapstructure:"empty_session_grace"`
}

type UIConfig struct {
	Currency string `mapstructure:"currency"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", filepath.Join(os.Getenv("HOME"), ".local", "share", "finance-ledger", "ledger.db"))
	v.SetDefault("storage.bigquery_project", "")
	v.SetDefault("storage.bigquery_dataset", "finance")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("jobs.buffer", 100)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.empty_session_grace", "15m")
	v.SetDefault("ui.currency", "USD")
}

// Load reads configuration from path, or from LEDGER_CONFIG, or from
// ~/.config/finance-ledger/config.toml when present. Env var overrides use
// prefix LEDGER_, with dots replaced by underscores (LEDGER_STORAGE_BACKEND).
func Load(path string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("LEDGER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "finance-ledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path must exist; the default location is optional.
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that the selected backend is fully configured.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: storage.sqlite_path is required for the sqlite backend")
		}
	case BackendBigQuery:
		if c.Storage.BigQueryProject == "" || c.Storage.BigQueryDataset == "" {
			return fmt.Errorf("config: storage.bigquery_project and storage.bigquery_dataset are required for the bigquery backend")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q (must be memory, sqlite or bigquery)", c.Storage.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("config: jobs.workers must be at least 1")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("config: jobs.max_retries must not be negative")
	}
	if c.Jobs.EmptySessionGrace < 0 {
		return fmt.Errorf("config: jobs.empty_session_grace must not be negative")
	}
	return nil
}
