// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path != "/data/watchvault.duckdb" {
		t.Errorf("Database.Path = %q, want /data/watchvault.duckdb", cfg.Database.Path)
	}
	if cfg.Database.MaxMemory != "1GB" {
		t.Errorf("Database.MaxMemory = %q, want 1GB", cfg.Database.MaxMemory)
	}

	if cfg.Cache.Path != "/data/enrichment-cache" {
		t.Errorf("Cache.Path = %q, want /data/enrichment-cache", cfg.Cache.Path)
	}
	if !cfg.Cache.SyncWrites {
		t.Error("Cache.SyncWrites should be true by default")
	}

	// Providers are opt-in
	if cfg.Metadata.Enabled {
		t.Error("Metadata.Enabled should be false by default")
	}
	if cfg.Metadata.MinInterval != time.Second {
		t.Errorf("Metadata.MinInterval = %v, want 1s", cfg.Metadata.MinInterval)
	}
	if cfg.Classification.Enabled {
		t.Error("Classification.Enabled should be false by default")
	}
	if cfg.Classification.BatchSize != 20 {
		t.Errorf("Classification.BatchSize = %d, want 20", cfg.Classification.BatchSize)
	}

	if cfg.Enrichment.Concurrency != 4 {
		t.Errorf("Enrichment.Concurrency = %d, want 4", cfg.Enrichment.Concurrency)
	}
	if cfg.Enrichment.MaxRetries != 3 {
		t.Errorf("Enrichment.MaxRetries = %d, want 3", cfg.Enrichment.MaxRetries)
	}

	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoadLayers_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := loadLayers()
	if err != nil {
		t.Fatalf("loadLayers() error = %v", err)
	}
	if cfg.Database.Path != "/data/watchvault.duckdb" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if !reflect.DeepEqual(cfg.Server.CORSOrigins, []string{"*"}) {
		t.Errorf("Server.CORSOrigins = %v, want [*]", cfg.Server.CORSOrigins)
	}
}

func TestLoadLayers_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("CACHE_IN_MEMORY", "true")
	t.Setenv("METADATA_ENABLED", "true")
	t.Setenv("METADATA_URL", "https://metadata.example.com/v4")
	t.Setenv("METADATA_MIN_INTERVAL", "1500ms")
	t.Setenv("CLASSIFICATION_BATCH_SIZE", "25")
	t.Setenv("ENRICHMENT_CONCURRENCY", "8")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadLayers()
	if err != nil {
		t.Fatalf("loadLayers() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Database.Path = %q, want /tmp/test.duckdb", cfg.Database.Path)
	}
	if !cfg.Cache.InMemory {
		t.Error("Cache.InMemory should be true from env")
	}
	if !cfg.Metadata.Enabled {
		t.Error("Metadata.Enabled should be true from env")
	}
	if cfg.Metadata.URL != "https://metadata.example.com/v4" {
		t.Errorf("Metadata.URL = %q", cfg.Metadata.URL)
	}
	if cfg.Metadata.MinInterval != 1500*time.Millisecond {
		t.Errorf("Metadata.MinInterval = %v, want 1.5s", cfg.Metadata.MinInterval)
	}
	if cfg.Classification.BatchSize != 25 {
		t.Errorf("Classification.BatchSize = %d, want 25", cfg.Classification.BatchSize)
	}
	if cfg.Enrichment.Concurrency != 8 {
		t.Errorf("Enrichment.Concurrency = %d, want 8", cfg.Enrichment.Concurrency)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.Server.CORSOrigins, want) {
		t.Errorf("Server.CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadLayers_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchvault.yaml")
	content := `
database:
  path: /srv/history.duckdb
classification:
  enabled: true
  url: https://llm.example.com/v1/chat/completions
  model: small-model
  batch_size: 10
enrichment:
  max_retries: 5
server:
  cors_origins:
    - https://dash.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	// Environment wins over the file
	t.Setenv("CLASSIFICATION_BATCH_SIZE", "12")

	cfg, err := loadLayers()
	if err != nil {
		t.Fatalf("loadLayers() error = %v", err)
	}

	if cfg.Database.Path != "/srv/history.duckdb" {
		t.Errorf("Database.Path = %q, want /srv/history.duckdb", cfg.Database.Path)
	}
	if !cfg.Classification.Enabled {
		t.Error("Classification.Enabled should be true from file")
	}
	if cfg.Classification.Model != "small-model" {
		t.Errorf("Classification.Model = %q, want small-model", cfg.Classification.Model)
	}
	if cfg.Classification.BatchSize != 12 {
		t.Errorf("Classification.BatchSize = %d, want 12 (env override)", cfg.Classification.BatchSize)
	}
	if cfg.Enrichment.MaxRetries != 5 {
		t.Errorf("Enrichment.MaxRetries = %d, want 5", cfg.Enrichment.MaxRetries)
	}
	// Untouched sections keep their defaults
	if cfg.Enrichment.Concurrency != 4 {
		t.Errorf("Enrichment.Concurrency = %d, want default 4", cfg.Enrichment.Concurrency)
	}
	if !reflect.DeepEqual(cfg.Server.CORSOrigins, []string{"https://dash.example.com"}) {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadLayers_ValidationFailure(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("METADATA_ENABLED", "true")

	if _, err := loadLayers(); err == nil {
		t.Fatal("expected validation error when metadata is enabled without a URL")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"DUCKDB_PATH", "database.path"},
		{"METADATA_MIN_INTERVAL", "metadata.min_interval"},
		{"classification_batch_size", "classification.batch_size"},
		{"RATE_LIMIT_REQUESTS", "server.rate_limit_reqs"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envKey(tt.input); got != tt.want {
				t.Errorf("envKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
