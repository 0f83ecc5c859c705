// Package config loads engine and CLI settings with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/assoc/internal/logging"
	"github.com/conduit-lang/assoc/internal/orm/db"
)

// Config is the assoc configuration
type Config struct {
	// Models is the YAML file declaring the model registry
	Models   string         `mapstructure:"models"`
	Database DatabaseConfig `mapstructure:"database"`
	Preload  PreloadConfig  `mapstructure:"preload"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PreloadConfig bounds the preload engine
type PreloadConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	MaxDepth  int `mapstructure:"max_depth"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// DBOptions converts the database section for db.Open
func (c DatabaseConfig) DBOptions() db.Options {
	return db.Options{
		Driver:          c.Driver,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// LoggingOptions converts the log section for logging.New
func (c LogConfig) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Level, Format: c.Format, Development: c.Development}
}

// Load reads configuration. When path is empty, assoc.yaml or assoc.yml is
// looked up in the working directory and a missing file means defaults.
// Every key can be overridden from the environment with the ASSOC_ prefix,
// e.g. ASSOC_PRELOAD_BATCH_SIZE; DATABASE_URL is honored as well.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("models", "models.yaml")
	v.SetDefault("database.url", "")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("preload.batch_size", 500)
	v.SetDefault("preload.max_depth", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("assoc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ASSOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "ASSOC_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Preload.BatchSize <= 0 {
		return fmt.Errorf("preload.batch_size must be positive, got: %d", cfg.Preload.BatchSize)
	}
	if cfg.Preload.MaxDepth <= 0 {
		return fmt.Errorf("preload.max_depth must be positive, got: %d", cfg.Preload.MaxDepth)
	}
	switch cfg.Database.Driver {
	case "", "pgx", "postgres", "sqlite3", "sqlite":
	default:
		return fmt.Errorf("database.driver must be pgx, postgres, sqlite3 or sqlite, got: %s", cfg.Database.Driver)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got: %s", cfg.Log.Format)
	}
	return nil
}
