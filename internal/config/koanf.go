// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset or names
// a missing file.
var DefaultConfigPaths = []string{
	"watchvault.yaml",
	"watchvault.yml",
	"/etc/watchvault/config.yaml",
	"/etc/watchvault/config.yml",
}

// ConfigPathEnvVar names the environment variable holding an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig is the bottom layer. Zero values are omitted: providers are
// opt-in, Threads 0 lets DuckDB pick, and no input or textfile path is set.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "/data/watchvault.duckdb", MaxMemory: "1GB"},
		Cache:    CacheConfig{Path: "/data/enrichment-cache", SyncWrites: true},
		Metadata: MetadataConfig{MinInterval: time.Second, Timeout: 15 * time.Second},
		Classification: ClassificationConfig{
			Model:     "gpt-4o-mini",
			BatchSize: 20,
			Timeout:   time.Minute,
		},
		Enrichment: EnrichmentConfig{
			Concurrency:    4,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RetryMaxDelay:  30 * time.Second,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// loadLayers merges defaults, the optional YAML file and mapped environment
// variables, later layers winning, then validates the result.
func loadLayers() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path := configFilePath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configFilePath() string {
	candidates := DefaultConfigPaths
	if explicit := os.Getenv(ConfigPathEnvVar); explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// listKeys hold []string values. From YAML they arrive as lists; from the
// environment they arrive as one comma-separated string.
var listKeys = []string{"server.cors_origins"}

func splitLists(k *koanf.Koanf) error {
	for _, key := range listKeys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			continue
		}
		if err := k.Set(key, items); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// envSections maps each config section to its environment variables
// (lowercased) and the field each one sets.
var envSections = map[string]map[string]string{
	"database": {
		"duckdb_path":       "path",
		"duckdb_max_memory": "max_memory",
		"duckdb_threads":    "threads",
	},
	"cache": {
		"cache_path":        "path",
		"cache_sync_writes": "sync_writes",
		"cache_in_memory":   "in_memory",
	},
	"metadata": {
		"metadata_enabled":      "enabled",
		"metadata_url":          "url",
		"metadata_api_key":      "api_key",
		"metadata_min_interval": "min_interval",
		"metadata_timeout":      "timeout",
	},
	"classification": {
		"classification_enabled":      "enabled",
		"classification_url":          "url",
		"classification_api_key":      "api_key",
		"classification_model":        "model",
		"classification_batch_size":   "batch_size",
		"classification_min_interval": "min_interval",
		"classification_timeout":      "timeout",
	},
	"enrichment": {
		"enrichment_concurrency":      "concurrency",
		"enrichment_max_retries":      "max_retries",
		"enrichment_retry_base_delay": "retry_base_delay",
		"enrichment_retry_max_delay":  "retry_max_delay",
	},
	"input": {
		"events_path":  "events_path",
		"ratings_path": "ratings_path",
		"run_interval": "interval",
	},
	"server": {
		"http_host":           "host",
		"http_port":           "port",
		"http_timeout":        "timeout",
		"cors_origins":        "cors_origins",
		"rate_limit_requests": "rate_limit_reqs",
		"rate_limit_window":   "rate_limit_window",
	},
	"metrics": {"metrics_textfile_path": "textfile_path"},
	"logging": {
		"log_level":  "level",
		"log_format": "format",
		"log_caller": "caller",
	},
}

// envPaths is envSections flattened to variable -> koanf path.
var envPaths = func() map[string]string {
	out := make(map[string]string)
	for section, vars := range envSections {
		for name, field := range vars {
			out[name] = section + "." + field
		}
	}
	return out
}()

// envKey maps an environment variable to its koanf path. Unknown variables
// map to "" and are dropped by the env provider.
func envKey(name string) string {
	return envPaths[strings.ToLower(name)]
}
