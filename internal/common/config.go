// Package common provides shared utilities for Folio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Folio
type Config struct {
	Environment  string          `toml:"environment"`
	BaseCurrency string          `toml:"base_currency"` // Fallback base currency when backend settings are unavailable
	Backend      BackendConfig   `toml:"backend"`
	Storage      StorageConfig   `toml:"storage"`
	Sync         SyncConfig      `toml:"sync"`
	Logging      LoggingConfig   `toml:"logging"`
	Portfolio    PortfolioConfig `toml:"portfolio"`
}

// BackendConfig holds the hosted backend connection settings.
type BackendConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the request timeout duration
func (c *BackendConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// StorageConfig holds local storage configuration.
type StorageConfig struct {
	Path string `toml:"path"` // Offline cache + credentials (BadgerHold)
}

// SyncConfig bounds the snapshot history backfill during a full refresh.
type SyncConfig struct {
	SnapshotPageSize int `toml:"snapshot_page_size"`
	MaxSnapshotPages int `toml:"max_snapshot_pages"`
}

// PortfolioConfig holds valuation defaults applied when the backend carries no
// per-user settings row.
type PortfolioConfig struct {
	RiskFreeRate float64 `toml:"risk_free_rate"` // Annual risk-free rate as a percentage
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:  "development",
		BaseCurrency: "USD",
		Backend: BackendConfig{
			RateLimit: 10,
			Timeout:   "30s",
		},
		Storage: StorageConfig{
			Path: "data/folio",
		},
		Sync: SyncConfig{
			SnapshotPageSize: 200,
			MaxSnapshotPages: 20,
		},
		Portfolio: PortfolioConfig{
			RiskFreeRate: 2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	// Normalize base currency
	validateBaseCurrency(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if url := os.Getenv("FOLIO_BACKEND_URL"); url != "" {
		config.Backend.BaseURL = url
	}

	if key := os.Getenv("FOLIO_API_KEY"); key != "" {
		config.Backend.APIKey = key
	}

	if limit := os.Getenv("FOLIO_RATE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			config.Backend.RateLimit = n
		}
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FOLIO_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if bc := os.Getenv("FOLIO_BASE_CURRENCY"); bc != "" {
		config.BaseCurrency = strings.ToUpper(bc)
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Validate checks that the settings required to talk to the backend are
// present. Offline-only commands skip this.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend base_url is required (set FOLIO_BACKEND_URL or backend.base_url)")
	}
	if strings.TrimSpace(c.Backend.APIKey) == "" {
		return fmt.Errorf("backend api_key is required (set FOLIO_API_KEY or backend.api_key)")
	}
	return nil
}

// validateBaseCurrency ensures BaseCurrency is a 3-letter uppercase code,
// defaulting to "USD".
func validateBaseCurrency(config *Config) {
	bc := strings.ToUpper(strings.TrimSpace(config.BaseCurrency))
	if len(bc) != 3 {
		bc = "USD"
	}
	config.BaseCurrency = bc
}
