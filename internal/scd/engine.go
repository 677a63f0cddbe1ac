// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package scd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/metrics"
	"github.com/tomtom215/watchvault/internal/models"
)

// Store is the persisted dimension table.
type Store interface {
	// CurrentRows returns every row with IsCurrent = true.
	CurrentRows(ctx context.Context) ([]models.DimensionRow, error)

	// ApplyMerge commits every expiration and insert of plan in one
	// transaction, or none of them.
	ApplyMerge(ctx context.Context, plan *models.MergePlan) error
}

// MergeError is a failed merge. Nothing from the batch was committed;
// Keys lists the natural keys that were in flight.
type MergeError struct {
	Keys []string
	Err  error
}

func (e *MergeError) Error() string {
	const maxShown = 5
	shown := e.Keys
	suffix := ""
	if len(shown) > maxShown {
		shown = shown[:maxShown]
		suffix = fmt.Sprintf(", ... %d more", len(e.Keys)-maxShown)
	}
	return fmt.Sprintf("merge of %d keys rolled back (%s%s): %v", len(e.Keys), strings.Join(shown, ", "), suffix, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Result summarizes a committed merge.
type Result struct {
	Classification
	MergedAt time.Time `json:"merged_at"`
	Inserted int       `json:"inserted"`
	Expired  int       `json:"expired"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of the merge instant.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator sets the surrogate id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine runs SCD2 merges against a Store.
type Engine struct {
	store Store
	now   func() time.Time
	newID func() string
	mu    sync.Mutex
}

// NewEngine creates an engine with a wall clock and UUID surrogate ids.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge classifies rows against the current table and commits the
// resulting plan atomically. Every version boundary written by one call
// shares a single instant. Any failure is a *MergeError and leaves the
// table as it was.
func (e *Engine) Merge(ctx context.Context, rows []models.StagingRow) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := logging.Ctx(ctx)
	start := time.Now()

	current, err := e.store.CurrentRows(ctx)
	if err != nil {
		return nil, e.fail(ctx, stagingKeys(rows), fmt.Errorf("load current rows: %w", err))
	}

	plan, class, err := BuildPlan(rows, current, e.now(), e.newID)
	if err != nil {
		return nil, e.fail(ctx, stagingKeys(rows), fmt.Errorf("build plan: %w", err))
	}

	for _, w := range class.Duplicates {
		log.Warn().Str("natural_key", w.NaturalKey).Str("kept", w.KeptTitle).Str("discarded", w.DiscardedTitle).Msg("Duplicate natural key in staging snapshot")
	}

	if !plan.Empty() {
		if err := e.store.ApplyMerge(ctx, plan); err != nil {
			return nil, e.fail(ctx, plan.Keys(), err)
		}
	}

	result := &Result{
		Classification: *class,
		MergedAt:       plan.MergedAt,
		Inserted:       len(plan.Inserts),
		Expired:        len(plan.Expirations),
	}

	metrics.RecordMerge(len(class.New), len(class.Changed), len(class.Unchanged), len(class.Duplicates), time.Since(start))
	log.Info().
		Time("merged_at", plan.MergedAt).
		Int("new", len(class.New)).
		Int("changed", len(class.Changed)).
		Int("unchanged", len(class.Unchanged)).
		Int("duplicates", len(class.Duplicates)).
		Int("untouched_current", len(current)-len(class.Changed)-len(class.Unchanged)).
		Msg("SCD2 merge committed")

	return result, nil
}

func (e *Engine) fail(ctx context.Context, keys []string, err error) error {
	metrics.MergeFailures.Inc()
	logging.Ctx(ctx).Error().Err(err).Int("keys", len(keys)).Strs("in_flight", keys).Msg("SCD2 merge rolled back")
	return &MergeError{Keys: keys, Err: err}
}

func stagingKeys(rows []models.StagingRow) []string {
	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows))
	for i := range rows {
		if _, ok := seen[rows[i].NaturalKey]; ok {
			continue
		}
		seen[rows[i].NaturalKey] = struct{}{}
		keys = append(keys, rows[i].NaturalKey)
	}
	return keys
}
