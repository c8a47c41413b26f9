// Package config loads engine settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. SCRIPTURE_DB_PATH.
const Prefix = "SCRIPTURE"

// Config holds settings shared by the CLI and the HTTP API.
// Command-line flags override individual fields after Load.
type Config struct {
	// Store
	DBPath    string `envconfig:"DB_PATH" default:"./scripture.db"`
	BatchSize int    `envconfig:"BATCH_SIZE" default:"500"`

	// Lookup and slides
	DefaultVersion string `envconfig:"DEFAULT_VERSION" default:"NKJV"`
	SlideMode      string `envconfig:"SLIDE_MODE" default:"annotated"`

	// Downloads
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"5m"`
	UserAgent       string        `envconfig:"USER_AGENT" default:"juniper-scripture/0.1"`

	// HTTP API
	HTTPPort       int      `envconfig:"HTTP_PORT" default:"8082"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	MaxUploadBytes int64    `envconfig:"MAX_UPLOAD_BYTES" default:"104857600"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads the configuration from SCRIPTURE_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration that Load produces with an empty environment.
func Default() *Config {
	return &Config{
		DBPath:          "./scripture.db",
		BatchSize:       500,
		DefaultVersion:  "NKJV",
		SlideMode:       "annotated",
		DownloadTimeout: 5 * time.Minute,
		UserAgent:       "juniper-scripture/0.1",
		HTTPPort:        8082,
		MaxUploadBytes:  100 << 20,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	switch strings.ToLower(c.SlideMode) {
	case "plain", "annotated":
	default:
		return fmt.Errorf("config: SLIDE_MODE must be plain or annotated, got %q", c.SlideMode)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: DB_PATH must not be empty")
	}
	return nil
}
