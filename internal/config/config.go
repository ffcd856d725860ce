// Package config handles application configuration using Viper.
// Values come from defaults, then an optional YAML file, then IIIF_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration struct.
// `mapstructure` tags tell Viper how to map YAML/env keys to struct fields.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Engine    EngineConfig    `mapstructure:"engine"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// BaseURL is the public URL of the service, used for the @id of info
	// documents. When empty it is derived from each request's Host header.
	BaseURL string `mapstructure:"base_url"`
}

// FetchConfig controls how source images are downloaded.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent"`
}

// EngineConfig selects the image engine and the size of its worker pool.
type EngineConfig struct {
	// Backend is "vips" (libvips through bimg) or "native" (pure Go).
	Backend   string `mapstructure:"backend"`
	Workers   int    `mapstructure:"workers"`
	MaxPixels int    `mapstructure:"max_pixels"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig points at the SQLite request ledger. An empty path
// disables the ledger and the admin endpoints.
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", 50<<20)
	v.SetDefault("fetch.user_agent", "aio-iiif/1.0")
	v.SetDefault("engine.backend", "vips")
	v.SetDefault("engine.workers", runtime.NumCPU())
	v.SetDefault("engine.max_pixels", 100_000_000)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("storage.database_path", "")
	v.SetDefault("log.level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// A missing config.yaml is fine unless a path was given explicitly.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// IIIF_ prefix + nested keys: IIIF_SERVER_PORT=9090 → server.port=9090
	v.SetEnvPrefix("IIIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine.Backend {
	case "vips", "native":
	default:
		return fmt.Errorf("unknown engine backend %q (want vips or native)", c.Engine.Backend)
	}
	if c.Engine.Workers < 1 {
		c.Engine.Workers = 1
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive, got %d", c.Fetch.MaxBytes)
	}
	return nil
}

// Address returns the listen address string like "0.0.0.0:8080".
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
