// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package config loads and validates Watchvault configuration.
//
// Configuration is layered with Koanf v2 (highest priority wins):
//
//  1. Environment variables (see envSections for the supported names)
//  2. Optional YAML config file ($CONFIG_PATH, watchvault.yaml, /etc/watchvault/config.yaml)
//  3. Built-in defaults (defaultConfig)
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database       DatabaseConfig       `koanf:"database"`
	Cache          CacheConfig          `koanf:"cache"`
	Metadata       MetadataConfig       `koanf:"metadata"`
	Classification ClassificationConfig `koanf:"classification"`
	Enrichment     EnrichmentConfig     `koanf:"enrichment"`
	Input          InputConfig          `koanf:"input"`
	Server         ServerConfig         `koanf:"server"`
	Metrics        MetricsConfig        `koanf:"metrics"`
	Logging        LoggingConfig        `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings for the dimension table.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // Number of DuckDB threads (0 = use NumCPU)
}

// CacheConfig holds BadgerDB settings for the enrichment cache.
type CacheConfig struct {
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
	InMemory   bool   `koanf:"in_memory"` // Volatile cache, used by tests and dry runs
}

// MetadataConfig configures the external metadata provider.
type MetadataConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	APIKey  string `koanf:"api_key"`

	// MinInterval is the provider's minimum spacing between calls.
	// Every call, retries included, waits on one process-wide gate.
	MinInterval time.Duration `koanf:"min_interval"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ClassificationConfig configures the generative-text genre classifier.
type ClassificationConfig struct {
	Enabled     bool          `koanf:"enabled"`
	URL         string        `koanf:"url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BatchSize   int           `koanf:"batch_size"`
	MinInterval time.Duration `koanf:"min_interval"` // 0 = unpaced
	Timeout     time.Duration `koanf:"timeout"`
}

// EnrichmentConfig holds the orchestrator's concurrency and retry policy.
type EnrichmentConfig struct {
	Concurrency    int           `koanf:"concurrency"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`
}

// InputConfig points at the raw viewing-history exports.
type InputConfig struct {
	EventsPath  string `koanf:"events_path"`
	RatingsPath string `koanf:"ratings_path"`

	// Interval schedules runs of the configured exports while serving.
	// Zero disables scheduled runs.
	Interval time.Duration `koanf:"interval"`
}

// ServerConfig holds settings for the read-only audit API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// MetricsConfig controls Prometheus metric export for batch runs.
type MetricsConfig struct {
	// TextfilePath, when set, receives a node-exporter textfile after each run.
	TextfilePath string `koanf:"textfile_path"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	Format string `koanf:"format"`

	// Caller includes file:line in log output.
	Caller bool `koanf:"caller"`
}

// Load reads configuration from defaults, the optional config file and the environment.
func Load() (*Config, error) {
	return loadLayers()
}
