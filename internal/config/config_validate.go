// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// maxClassificationBatchSize bounds the titles sent in one prompt.
const maxClassificationBatchSize = 200

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateClassification(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("CACHE_PATH is required unless CACHE_IN_MEMORY=true")
	}
	return nil
}

// validateMetadata validates the metadata provider (only if enabled)
func (c *Config) validateMetadata() error {
	if !c.Metadata.Enabled {
		return nil
	}
	if c.Metadata.URL == "" {
		return fmt.Errorf("METADATA_URL is required when METADATA_ENABLED=true")
	}
	if err := validateHTTPURL(c.Metadata.URL, "METADATA_URL"); err != nil {
		return err
	}
	// The provider's rate contract is a hard constraint; an unpaced metadata client is a misconfiguration.
	if c.Metadata.MinInterval <= 0 {
		return fmt.Errorf("METADATA_MIN_INTERVAL must be positive, got %v", c.Metadata.MinInterval)
	}
	if c.Metadata.Timeout <= 0 {
		return fmt.Errorf("METADATA_TIMEOUT must be positive, got %v", c.Metadata.Timeout)
	}
	return nil
}

// validateClassification validates the classification provider (only if enabled)
func (c *Config) validateClassification() error {
	if c.Classification.BatchSize < 1 || c.Classification.BatchSize > maxClassificationBatchSize {
		return fmt.Errorf("CLASSIFICATION_BATCH_SIZE must be between 1 and %d, got %d",
			maxClassificationBatchSize, c.Classification.BatchSize)
	}
	if !c.Classification.Enabled {
		return nil
	}
	if c.Classification.URL == "" {
		return fmt.Errorf("CLASSIFICATION_URL is required when CLASSIFICATION_ENABLED=true")
	}
	if err := validateHTTPURL(c.Classification.URL, "CLASSIFICATION_URL"); err != nil {
		return err
	}
	if c.Classification.Model == "" {
		return fmt.Errorf("CLASSIFICATION_MODEL is required when CLASSIFICATION_ENABLED=true")
	}
	if c.Classification.MinInterval < 0 {
		return fmt.Errorf("CLASSIFICATION_MIN_INTERVAL must be >= 0, got %v", c.Classification.MinInterval)
	}
	if c.Classification.Timeout <= 0 {
		return fmt.Errorf("CLASSIFICATION_TIMEOUT must be positive, got %v", c.Classification.Timeout)
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if c.Enrichment.Concurrency < 1 {
		return fmt.Errorf("ENRICHMENT_CONCURRENCY must be at least 1, got %d", c.Enrichment.Concurrency)
	}
	if c.Enrichment.MaxRetries < 0 || c.Enrichment.MaxRetries > 10 {
		return fmt.Errorf("ENRICHMENT_MAX_RETRIES must be between 0 and 10, got %d", c.Enrichment.MaxRetries)
	}
	if c.Enrichment.RetryBaseDelay < 0 {
		return fmt.Errorf("ENRICHMENT_RETRY_BASE_DELAY must be >= 0, got %v", c.Enrichment.RetryBaseDelay)
	}
	if c.Enrichment.RetryMaxDelay < c.Enrichment.RetryBaseDelay {
		return fmt.Errorf("ENRICHMENT_RETRY_MAX_DELAY (%v) must be >= ENRICHMENT_RETRY_BASE_DELAY (%v)",
			c.Enrichment.RetryMaxDelay, c.Enrichment.RetryBaseDelay)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be >= 0, got %d", c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %v", c.Server.RateLimitWindow)
	}
	if c.Input.Interval < 0 {
		return fmt.Errorf("RUN_INTERVAL must be >= 0, got %v", c.Input.Interval)
	}
	if c.Input.Interval > 0 && c.Input.EventsPath == "" {
		return errors.New("RUN_INTERVAL requires EVENTS_PATH")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL validates that a URL is an absolute HTTP/HTTPS endpoint without query parameters.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}

	return nil
}
