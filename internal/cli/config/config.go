// Package config loads CLI configuration from fingraph.yml and FINGRAPH_*
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fingraph-lang/fingraph/pkg/template/store"
)

// Config represents the fingraph CLI configuration
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Log      LogConfig      `mapstructure:"log"`
}

// RegistryConfig selects and configures the template storage backend
type RegistryConfig struct {
	Backend string `mapstructure:"backend"`
	Root    string `mapstructure:"root"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	URL     string `mapstructure:"url"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads the configuration from fingraph.yml or fingraph.yaml in the
// current directory, with FINGRAPH_* environment variables taking
// precedence (FINGRAPH_REGISTRY_BACKEND, FINGRAPH_LOG_LEVEL, ...).
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("registry.backend", "filesystem")
	v.SetDefault("registry.root", "")
	v.SetDefault("log.level", "warn")

	// Set config name and paths
	v.SetConfigName("fingraph")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.SetEnvPrefix("FINGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// StoreConfig converts the registry section into a backend config.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:   c.Registry.Backend,
		Root:   c.Registry.Root,
		Bucket: c.Registry.Bucket,
		Prefix: c.Registry.Prefix,
		URL:    c.Registry.URL,
	}
}

// Logger builds a zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Registry.Backend {
	case "memory", "filesystem", "singlefile", "s3", "redis":
	default:
		return fmt.Errorf("unknown registry backend %q (want memory, filesystem, singlefile, s3, or redis)", cfg.Registry.Backend)
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}

	switch cfg.Registry.Backend {
	case "s3":
		if cfg.Registry.Bucket == "" {
			return fmt.Errorf("registry.bucket is required for the s3 backend")
		}
	case "redis":
		if cfg.Registry.URL == "" {
			return fmt.Errorf("registry.url is required for the redis backend")
		}
	}
	return nil
}
