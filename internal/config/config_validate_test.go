// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "DUCKDB_PATH",
		},
		{
			name:    "missing cache path",
			mutate:  func(c *Config) { c.Cache.Path = "" },
			wantErr: "CACHE_PATH",
		},
		{
			name: "in-memory cache needs no path",
			mutate: func(c *Config) {
				c.Cache.Path = ""
				c.Cache.InMemory = true
			},
		},
		{
			name:    "metadata enabled without url",
			mutate:  func(c *Config) { c.Metadata.Enabled = true },
			wantErr: "METADATA_URL is required",
		},
		{
			name: "metadata url with bad scheme",
			mutate: func(c *Config) {
				c.Metadata.Enabled = true
				c.Metadata.URL = "ftp://metadata.example.com"
			},
			wantErr: "scheme must be http or https",
		},
		{
			name: "metadata url with base path is valid",
			mutate: func(c *Config) {
				c.Metadata.Enabled = true
				c.Metadata.URL = "https://metadata.example.com/api/v4"
			},
		},
		{
			name: "metadata requires pacing",
			mutate: func(c *Config) {
				c.Metadata.Enabled = true
				c.Metadata.URL = "https://metadata.example.com"
				c.Metadata.MinInterval = 0
			},
			wantErr: "METADATA_MIN_INTERVAL",
		},
		{
			name:    "classification batch size zero",
			mutate:  func(c *Config) { c.Classification.BatchSize = 0 },
			wantErr: "CLASSIFICATION_BATCH_SIZE",
		},
		{
			name: "classification enabled without model",
			mutate: func(c *Config) {
				c.Classification.Enabled = true
				c.Classification.URL = "https://llm.example.com/v1/chat/completions"
				c.Classification.Model = ""
			},
			wantErr: "CLASSIFICATION_MODEL",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Enrichment.Concurrency = 0 },
			wantErr: "ENRICHMENT_CONCURRENCY",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Enrichment.MaxRetries = -1 },
			wantErr: "ENRICHMENT_MAX_RETRIES",
		},
		{
			name: "max delay below base delay",
			mutate: func(c *Config) {
				c.Enrichment.RetryBaseDelay = 10 * time.Second
				c.Enrichment.RetryMaxDelay = time.Second
			},
			wantErr: "ENRICHMENT_RETRY_MAX_DELAY",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "scheduled runs without events",
			mutate:  func(c *Config) { c.Input.Interval = time.Hour },
			wantErr: "RUN_INTERVAL requires EVENTS_PATH",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "LOG_FORMAT",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateHTTPURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://api.example.com", false},
		{"http://localhost:8080/v1", false},
		{"https://api.example.com/v1/chat/completions", false},
		{"api.example.com", true},
		{"https://", true},
		{"https://api.example.com?key=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateHTTPURL(tt.url, "TEST_URL")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
