// Package config provides YAML configuration loading and validation for the
// ksc compile daemon.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for ksc-server.
type Config struct {
	// HTTPAddr is the listen address for the REST API and WebSocket build
	// status stream (e.g. "127.0.0.1:8090"). Defaults to "127.0.0.1:8090"
	// when omitted.
	HTTPAddr string `yaml:"http_addr"`

	// JobStoreDSN is the PostgreSQL DSN backing the compile job history and
	// build audit log. Required.
	JobStoreDSN string `yaml:"jobstore_dsn"`

	// CachePath is the filesystem path to the WAL-mode SQLite build cache.
	// Defaults to "ksc-cache.db" when omitted.
	CachePath string `yaml:"cache_path"`

	// JWTPublicKeyPath is the path to a PEM-encoded RSA public key used to
	// verify RS256 Bearer tokens on the REST API. Leave empty to disable
	// authentication (dev only).
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// MaxCacheEntries bounds the number of cached build artifacts kept
	// before the oldest are evicted. Defaults to 10000 when omitted.
	MaxCacheEntries int `yaml:"max_cache_entries"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:8090"
	}
	if cfg.CachePath == "" {
		cfg.CachePath = "ksc-cache.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxCacheEntries <= 0 {
		cfg.MaxCacheEntries = 10000
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.JobStoreDSN == "" {
		errs = append(errs, errors.New("jobstore_dsn is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	return errors.Join(errs...)
}
