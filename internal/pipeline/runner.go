// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package pipeline runs one incremental load: aggregate the raw export,
// enrich the staging rows through the cache and providers, then merge them
// into the dimension table.
//
// A Runner serializes its runs. Across processes, DuckDB and badger each
// hold an exclusive file lock, so a second process cannot open the same
// warehouse while a run is in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/watchvault/internal/aggregate"
	"github.com/tomtom215/watchvault/internal/cache"
	"github.com/tomtom215/watchvault/internal/enrich"
	"github.com/tomtom215/watchvault/internal/ingest"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/metrics"
	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/scd"
)

// Run stages, used as the stage label of failed runs.
const (
	StageIngest    = "ingest"
	StageCacheLoad = "cache_load"
	StageEnrich    = "enrich"
	StageMerge     = "merge"
)

// Merger applies staging rows to the dimension table. *scd.Engine implements it.
type Merger interface {
	Merge(ctx context.Context, rows []models.StagingRow) (*scd.Result, error)
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Cache    *cache.Store
	Enricher *enrich.Orchestrator
	Merger   Merger

	// TextfilePath, when set, receives the metrics registry after every run.
	TextfilePath string
}

// Report describes one run, successful or not.
type Report struct {
	CorrelationID string               `json:"correlation_id"`
	StartedAt     time.Time            `json:"started_at"`
	Duration      time.Duration        `json:"duration"`
	Stage         string               `json:"stage"`
	Aggregate     aggregate.Summary    `json:"aggregate"`
	Enrichment    enrich.Stats         `json:"enrichment"`
	Degraded      []enrich.DegradedRow `json:"degraded,omitempty"`
	Merge         *scd.Result          `json:"merge,omitempty"`
}

// Runner executes pipeline runs one at a time.
type Runner struct {
	deps Deps
	mu   sync.Mutex
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// RunFiles loads the configured exports and runs the pipeline. An empty
// ratingsPath means no ratings.
func (r *Runner) RunFiles(ctx context.Context, eventsPath, ratingsPath string) (*Report, error) {
	if eventsPath == "" {
		return nil, errors.New("events path is required")
	}
	events, err := ingest.LoadEvents(eventsPath)
	if err != nil {
		metrics.RecordRun(0, StageIngest, err)
		return nil, fmt.Errorf("load events: %w", err)
	}

	var ratings []models.Rating
	if ratingsPath != "" {
		ratings, err = ingest.LoadRatings(ratingsPath)
		if err != nil {
			metrics.RecordRun(0, StageIngest, err)
			return nil, fmt.Errorf("load ratings: %w", err)
		}
	}

	return r.Run(ctx, events, ratings)
}

// Run aggregates events and ratings, enriches the result and merges it.
// The returned report is non-nil even on failure and names the stage that
// failed. Enrichment problems degrade rows; a cache flush failure or a
// merge failure aborts the run.
func (r *Runner) Run(ctx context.Context, events []models.RawEvent, ratings []models.Rating) (report *Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	start := time.Now()

	report = &Report{
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		StartedAt:     start.UTC(),
	}
	defer func() {
		report.Duration = time.Since(start)
		metrics.RecordRun(report.Duration, report.Stage, err)
		if err != nil {
			log.Error().Err(err).Str("stage", report.Stage).Dur("duration", report.Duration).Msg("Run failed")
		}
		r.writeTextfile(ctx)
	}()

	log.Info().Int("events", len(events)).Int("ratings", len(ratings)).Msg("Run started")

	rows, summary := aggregate.Aggregate(events, ratings)
	report.Aggregate = summary
	log.Info().
		Int("titles", summary.Titles).
		Int("skipped_events", summary.SkippedEvents).
		Int("orphan_ratings", summary.OrphanRatings).
		Msg("Aggregated viewing events")

	report.Stage = StageCacheLoad
	metaCache, classCache := r.deps.Cache.Metadata(), r.deps.Cache.Classification()
	if _, err = metaCache.BulkLoad(ctx); err != nil {
		return report, fmt.Errorf("load metadata cache: %w", err)
	}
	if _, err = classCache.BulkLoad(ctx); err != nil {
		return report, fmt.Errorf("load classification cache: %w", err)
	}

	report.Stage = StageEnrich
	enriched, err := r.deps.Enricher.Enrich(ctx, rows, metaCache, classCache)
	if enriched != nil {
		report.Enrichment = enriched.Stats
		report.Degraded = enriched.Degraded
	}
	if err != nil {
		return report, fmt.Errorf("enrichment: %w", err)
	}

	report.Stage = StageMerge
	result, err := r.deps.Merger.Merge(ctx, enriched.Rows)
	if err != nil {
		return report, err
	}
	report.Merge = result
	report.Stage = ""

	if gcErr := r.deps.Cache.RunGC(); gcErr != nil {
		log.Warn().Err(gcErr).Msg("Enrichment cache GC failed")
	}

	log.Info().
		Int("new", len(result.New)).
		Int("changed", len(result.Changed)).
		Int("unchanged", len(result.Unchanged)).
		Int("degraded", len(report.Degraded)).
		Dur("duration", time.Since(start)).
		Msg("Run finished")
	return report, nil
}

func (r *Runner) writeTextfile(ctx context.Context) {
	if r.deps.TextfilePath == "" {
		return
	}
	if err := metrics.WriteTextfile(r.deps.TextfilePath); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to write metrics textfile")
	}
}
