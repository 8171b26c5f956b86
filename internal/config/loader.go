// Package config provides centralized configuration management for apilens.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
)

const (
	// AppName names the XDG config, data and cache directories.
	AppName = "apilens"
	// EnvPrefix prefixes every environment variable read by apilens.
	EnvPrefix = "APILENS_"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Load builds the configuration. Layers, lowest precedence first:
//  1. Built-in defaults (Defaults)
//  2. settings, typically viper.AllSettings() from the config file
//  3. Short-form environment variables (see getEnvSpecs)
//  4. runtimeOverrides, in order
//
// This function is safe to call multiple times.
func Load(ctx context.Context, settings map[string]any, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	merged := Defaults()
	mergeSettings(merged, settings)
	mergeSettings(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeSettings(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns the short-form environment variables. Long forms such
// as APILENS_CONNECTOR_DEFAULT_TIMEOUT are handled by viper.
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Connector defaults
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "TIMEOUT", Path: []string{"connector", "default_timeout"}, Type: EnvString},
		{Name: prefix + "RETRY_COUNT", Path: []string{"connector", "default_retry_count"}, Type: EnvInt},
		{Name: prefix + "BACKOFF_BASE", Path: []string{"connector", "backoff_base"}, Type: EnvString},
		{Name: prefix + "BATCH_CONCURRENCY", Path: []string{"connector", "batch_concurrency"}, Type: EnvInt},
		{Name: prefix + "USER_AGENT", Path: []string{"connector", "user_agent"}, Type: EnvString},
		{Name: prefix + "LOCAL_RATE_ACCOUNTING", Path: []string{"connector", "local_rate_accounting"}, Type: EnvBool},

		// Discovery
		{Name: prefix + "PROBE_TIMEOUT", Path: []string{"discovery", "probe_timeout"}, Type: EnvString},
		{Name: prefix + "PROBE_CONCURRENCY", Path: []string{"discovery", "probe_concurrency"}, Type: EnvInt},
		{Name: prefix + "DISCOVERY_CACHE_TTL", Path: []string{"discovery", "cache_ttl"}, Type: EnvString},

		// Catalog
		{Name: prefix + "CATALOG_PATH", Path: []string{"catalog", "path"}, Type: EnvString},

		// Logging
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
	}
}

// mergeSettings deep-merges src into dst. Nested maps merge; other values
// replace.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := asSettingsMap(value)
		if srcIsMap {
			if dstMap, ok := asSettingsMap(dst[key]); ok {
				mergeSettings(dstMap, srcMap)
				dst[key] = dstMap
				continue
			}
			copied := make(map[string]any, len(srcMap))
			mergeSettings(copied, srcMap)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

func asSettingsMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for k, v := range typed {
			converted[fmt.Sprint(k)] = v
		}
		return converted, true
	default:
		return nil, false
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultConfigDirs returns the directories searched for config.yaml.
func DefaultConfigDirs() []string {
	paths := gfconfig.GetAppConfigPaths(AppName)
	dirs := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		dir := path
		if filepath.Ext(path) != "" {
			dir = filepath.Dir(path)
		}
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
