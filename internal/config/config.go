package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration. Values are
// layered: built-in defaults, the user config file, environment variables,
// then runtime overrides such as command flags.
type Config struct {
	Connector ConnectorConfig `mapstructure:"connector"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ConnectorConfig contains request execution defaults.
type ConnectorConfig struct {
	// DefaultTimeout applies to connections created without a timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// DefaultRetryCount applies to connections created without a retry count.
	DefaultRetryCount int           `mapstructure:"default_retry_count"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BatchConcurrency  int           `mapstructure:"batch_concurrency"`
	MaxResponseSize   int64         `mapstructure:"max_response_size"`

	// LocalRateAccounting decrements a connection's local budget on every
	// allowed call. When false only provider headers reduce it.
	LocalRateAccounting bool   `mapstructure:"local_rate_accounting"`
	UserAgent           string `mapstructure:"user_agent"`
}

// DiscoveryConfig contains API discovery settings.
type DiscoveryConfig struct {
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	UseCache         bool          `mapstructure:"use_cache"`
}

// CatalogConfig points at an optional catalog file. Empty uses the
// embedded catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logger: "simple" for console output,
	// "structured" for JSON lines on stderr.
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled starts a Prometheus exporter for the lifetime of a command.
	Enabled bool `mapstructure:"enabled"`

	// Port is the exporter port; 0 picks a free port.
	Port int `mapstructure:"port"`
}

// Defaults returns the built-in configuration as a nested settings map.
func Defaults() map[string]any {
	return map[string]any{
		"connector": map[string]any{
			"default_timeout":       "30s",
			"default_retry_count":   3,
			"backoff_base":          "1s",
			"batch_concurrency":     5,
			"max_response_size":     10 * 1024 * 1024,
			"local_rate_accounting": true,
			"user_agent":            "apilens",
		},
		"discovery": map[string]any{
			"probe_timeout":     "5s",
			"probe_concurrency": 4,
			"cache_ttl":         "24h",
			"use_cache":         true,
		},
		"catalog": map[string]any{
			"path": "",
		},
		"store": map[string]any{
			"driver":     "libsql",
			"path":       "",
			"url":        "",
			"auth_token": "",
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "simple",
		},
		"metrics": map[string]any{
			"enabled": false,
			"port":    9090,
		},
	}
}

// Validate reports settings the connector cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []string
	if c.Connector.DefaultTimeout <= 0 {
		problems = append(problems, "connector.default_timeout must be positive")
	}
	if c.Connector.DefaultRetryCount < 0 {
		problems = append(problems, "connector.default_retry_count must not be negative")
	}
	if c.Connector.BackoffBase <= 0 {
		problems = append(problems, "connector.backoff_base must be positive")
	}
	if c.Connector.BatchConcurrency < 1 {
		problems = append(problems, "connector.batch_concurrency must be at least 1")
	}
	if c.Connector.MaxResponseSize <= 0 {
		problems = append(problems, "connector.max_response_size must be positive")
	}
	if c.Discovery.ProbeTimeout <= 0 {
		problems = append(problems, "discovery.probe_timeout must be positive")
	}
	if c.Discovery.ProbeConcurrency < 1 {
		problems = append(problems, "discovery.probe_concurrency must be at least 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Profile)) {
	case "", "simple", "structured":
	default:
		problems = append(problems, fmt.Sprintf("logging.profile %q is not one of simple, structured", c.Logging.Profile))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		problems = append(problems, "metrics.port must be between 0 and 65535")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
