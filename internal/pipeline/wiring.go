// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package pipeline

import (
	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/enrich"
	"github.com/tomtom215/watchvault/internal/provider"
)

// EnrichOptions builds orchestrator options from configuration. Disabled
// providers are left as nil interfaces, never as typed nil pointers, so the
// orchestrator sees them as absent.
func EnrichOptions(cfg *config.Config) enrich.Options {
	opts := enrich.Options{
		BatchSize:                 cfg.Classification.BatchSize,
		Concurrency:               cfg.Enrichment.Concurrency,
		MaxRetries:                cfg.Enrichment.MaxRetries,
		RetryBaseDelay:            cfg.Enrichment.RetryBaseDelay,
		RetryMaxDelay:             cfg.Enrichment.RetryMaxDelay,
		MetadataMinInterval:       cfg.Metadata.MinInterval,
		ClassificationMinInterval: cfg.Classification.MinInterval,
	}

	if cfg.Metadata.Enabled {
		opts.Metadata = provider.NewBreakerMetadataFetcher(
			provider.NewMetadataClient(&cfg.Metadata),
			provider.DefaultBreakerSettings(),
		)
	}
	if cfg.Classification.Enabled {
		opts.Classification = provider.NewBreakerClassificationFetcher(
			provider.NewClassificationClient(&cfg.Classification),
			provider.DefaultBreakerSettings(),
		)
	}
	return opts
}

// NewEnricher builds the orchestrator described by cfg.
func NewEnricher(cfg *config.Config) *enrich.Orchestrator {
	return enrich.New(EnrichOptions(cfg))
}
