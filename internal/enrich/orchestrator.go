// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package enrich fills the enrichment fields of staging rows from the two
cache namespaces and, on a miss, from the external providers.

A run of Enrich has four steps:

 1. Metadata: every row is looked up by (normalized title, year). Misses
    are deduplicated and fetched one call per key through a single global
    rate.Limiter, so the provider's minimum interval holds across all
    workers and across retries.
 2. Classification: rows whose normalized title misses the classification
    cache are partitioned into batches of at most BatchSize titles, one
    call per batch. Response titles are normalized back to row keys; a
    title the provider leaves out is a miss for this run and is not cached.
 3. Failed lookups degrade the affected rows. Enrichment fields stay nil,
    the row is reported in Result.Degraded, and the run continues.
 4. Both namespaces are flushed exactly once, after every fetch finished.

Only transient provider errors are retried, with capped exponential
backoff that honours Retry-After. The input rows are never mutated.
*/
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/watchvault/internal/cache"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/metrics"
	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
	"github.com/tomtom215/watchvault/internal/provider"
)

// MetadataCache is the metadata namespace as seen by the orchestrator.
// *cache.Namespace[models.MetadataCacheEntry] satisfies it.
type MetadataCache interface {
	Get(key string) (models.MetadataCacheEntry, bool)
	Put(key string, value models.MetadataCacheEntry)
	Flush(ctx context.Context) error
}

// ClassificationCache is the classification namespace as seen by the orchestrator.
type ClassificationCache interface {
	Get(key string) (models.ClassificationCacheEntry, bool)
	Put(key string, value models.ClassificationCacheEntry)
	Flush(ctx context.Context) error
}

// Options configures an Orchestrator. A nil fetcher disables that
// provider: its misses stay unresolved without being reported as degraded.
type Options struct {
	Metadata       provider.MetadataFetcher
	Classification provider.ClassificationFetcher

	BatchSize   int // titles per classification call
	Concurrency int // fetches in flight at once

	MaxRetries     int // extra attempts after a transient failure
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	MetadataMinInterval       time.Duration // 0 disables pacing
	ClassificationMinInterval time.Duration

	// Clock stamps cache entries. Defaults to time.Now.
	Clock func() time.Time
}

// DegradedRow reports a row whose enrichment did not resolve because a
// fetch failed.
type DegradedRow struct {
	NaturalKey string `json:"natural_key"`
	Title      string `json:"title"`
	Provider   string `json:"provider"`
	Reason     string `json:"reason"`
}

// Stats counts lookups by unique cache key.
type Stats struct {
	MetadataHits    int `json:"metadata_hits"`
	MetadataFetched int `json:"metadata_fetched"`
	MetadataFailed  int `json:"metadata_failed"`
	MetadataSkipped int `json:"metadata_skipped"`

	ClassificationHits       int `json:"classification_hits"`
	ClassificationFetched    int `json:"classification_fetched"`
	ClassificationUnanswered int `json:"classification_unanswered"`
	ClassificationFailed     int `json:"classification_failed"`
	ClassificationSkipped    int `json:"classification_skipped"`
	ClassificationBatches    int `json:"classification_batches"`
}

// Result is the outcome of one Enrich call.
type Result struct {
	Rows     []models.StagingRow
	Degraded []DegradedRow
	Stats    Stats
}

// Orchestrator enriches staging rows. Its rate limiters live as long as the
// orchestrator, so pacing also holds across consecutive runs.
type Orchestrator struct {
	opts         Options
	metaLimiter  *rate.Limiter
	classLimiter *rate.Limiter
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator, filling zero options with defaults.
func New(opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = opts.RetryBaseDelay
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Orchestrator{
		opts:         opts,
		metaLimiter:  newLimiter(opts.MetadataMinInterval),
		classLimiter: newLimiter(opts.ClassificationMinInterval),
		sleep:        sleepContext,
	}
}

// newLimiter allows one call per interval with no burst.
func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enrich returns enriched copies of rows. Fetch failures never produce an
// error; they degrade rows. The returned error is a cache flush failure
// (both joined when both namespaces fail) or the caller's context error.
// On cancellation the lookups confirmed so far are still flushed.
func (o *Orchestrator) Enrich(ctx context.Context, rows []models.StagingRow, metaCache MetadataCache, classCache ClassificationCache) (*Result, error) {
	log := logging.Ctx(ctx)
	started := time.Now()

	res := &Result{Rows: make([]models.StagingRow, len(rows))}
	for i := range rows {
		res.Rows[i] = rows[i].Clone()
	}

	o.enrichMetadata(ctx, res, metaCache)
	o.enrichClassification(ctx, res, classCache)

	for _, d := range res.Degraded {
		metrics.DegradedRows.WithLabelValues(d.Provider).Inc()
		log.Warn().Str("natural_key", d.NaturalKey).Str("title", d.Title).Str("provider", d.Provider).Str("reason", d.Reason).Msg("Row enrichment degraded")
	}

	runErr := ctx.Err()
	flushCtx := ctx
	if runErr != nil {
		flushCtx = context.WithoutCancel(ctx)
	}
	flushErr := errors.Join(metaCache.Flush(flushCtx), classCache.Flush(flushCtx))

	log.Info().
		Int("rows", len(res.Rows)).
		Int("degraded", len(res.Degraded)).
		Int("metadata_hits", res.Stats.MetadataHits).
		Int("metadata_fetched", res.Stats.MetadataFetched).
		Int("classification_hits", res.Stats.ClassificationHits).
		Int("classification_fetched", res.Stats.ClassificationFetched).
		Int("classification_batches", res.Stats.ClassificationBatches).
		Dur("duration", time.Since(started)).
		Msg("Enrichment complete")

	if err := errors.Join(runErr, flushErr); err != nil {
		return res, err
	}
	return res, nil
}

// keyGroup is one cache key and the rows sharing it, in first-seen order.
type keyGroup struct {
	key   string
	title string // raw title of the first row, sent to the provider
	rows  []int
}

func groupMisses(keys []string, titles []string, hit func(i int) bool) []keyGroup {
	index := make(map[string]int)
	var groups []keyGroup
	for i, key := range keys {
		if hit(i) {
			continue
		}
		if g, ok := index[key]; ok {
			groups[g].rows = append(groups[g].rows, i)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, keyGroup{key: key, title: titles[i], rows: []int{i}})
	}
	return groups
}

func (o *Orchestrator) enrichMetadata(ctx context.Context, res *Result, metaCache MetadataCache) {
	keys := make([]string, len(res.Rows))
	titles := make([]string, len(res.Rows))
	hitKeys := make(map[string]struct{})
	for i := range res.Rows {
		row := &res.Rows[i]
		keys[i] = cache.MetadataKey(normalize.Title(row.RawTitle), row.Year)
		titles[i] = normalize.Title(row.RawTitle)
	}

	misses := groupMisses(keys, titles, func(i int) bool {
		entry, ok := metaCache.Get(keys[i])
		if ok {
			applyMetadata(&res.Rows[i], &entry.Payload)
			hitKeys[keys[i]] = struct{}{}
		}
		return ok
	})
	res.Stats.MetadataHits = len(hitKeys)

	if len(misses) == 0 {
		return
	}
	if o.opts.Metadata == nil {
		res.Stats.MetadataSkipped = len(misses)
		return
	}

	// Each worker writes only its own slot.
	fetched := make([]*models.TitleMetadata, len(misses))
	failures := make([]error, len(misses))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i := range misses {
		g.Go(func() error {
			miss := misses[i]
			year := res.Rows[miss.rows[0]].Year
			failures[i] = o.call(ctx, o.metaLimiter, provider.ProviderMetadata, func(ctx context.Context) error {
				meta, err := o.opts.Metadata.FetchMetadata(ctx, miss.title, year)
				if err != nil {
					return err
				}
				if meta == nil {
					return fmt.Errorf("%s: %w", provider.ProviderMetadata, provider.ErrNotFound)
				}
				fetched[i] = meta
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()

	now := o.opts.Clock().UTC()
	for i, miss := range misses {
		if err := failures[i]; err != nil {
			res.Stats.MetadataFailed++
			res.degrade(miss, provider.ProviderMetadata, err)
			continue
		}
		res.Stats.MetadataFetched++
		metaCache.Put(miss.key, models.MetadataCacheEntry{Payload: *fetched[i], FetchedAt: now})
		for _, r := range miss.rows {
			applyMetadata(&res.Rows[r], fetched[i])
		}
	}
}

func (o *Orchestrator) enrichClassification(ctx context.Context, res *Result, classCache ClassificationCache) {
	keys := make([]string, len(res.Rows))
	titles := make([]string, len(res.Rows))
	hitKeys := make(map[string]struct{})
	for i := range res.Rows {
		keys[i] = cache.ClassificationKey(normalize.Title(res.Rows[i].RawTitle))
		titles[i] = res.Rows[i].RawTitle
	}

	misses := groupMisses(keys, titles, func(i int) bool {
		entry, ok := classCache.Get(keys[i])
		if ok {
			applyGenres(&res.Rows[i], entry.Genres)
			hitKeys[keys[i]] = struct{}{}
		}
		return ok
	})
	res.Stats.ClassificationHits = len(hitKeys)

	if len(misses) == 0 {
		return
	}
	if o.opts.Classification == nil {
		res.Stats.ClassificationSkipped = len(misses)
		return
	}

	batches := partition(misses, o.opts.BatchSize)
	res.Stats.ClassificationBatches = len(batches)

	answers := make([]map[string][]string, len(batches))
	failures := make([]error, len(batches))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for b := range batches {
		g.Go(func() error {
			batch := batches[b]
			batchTitles := make([]string, len(batch))
			for j := range batch {
				batchTitles[j] = batch[j].title
			}
			failures[b] = o.call(ctx, o.classLimiter, provider.ProviderClassification, func(ctx context.Context) error {
				answer, err := o.opts.Classification.Classify(ctx, batchTitles)
				if err == nil {
					answers[b] = answer
				}
				return err
			})
			return nil
		})
	}
	_ = g.Wait()

	now := o.opts.Clock().UTC()
	for b, batch := range batches {
		if err := failures[b]; err != nil {
			res.Stats.ClassificationFailed += len(batch)
			for _, miss := range batch {
				res.degrade(miss, provider.ProviderClassification, err)
			}
			continue
		}

		// Providers echo titles with their own spelling; match on the normalized form.
		byKey := make(map[string][]string, len(answers[b]))
		for title, genres := range answers[b] {
			key := cache.ClassificationKey(normalize.Title(title))
			byKey[key] = append(byKey[key], genres...)
		}

		for _, miss := range batch {
			genres := normalize.Genres(byKey[miss.key])
			if len(genres) == 0 {
				res.Stats.ClassificationUnanswered++
				continue
			}
			res.Stats.ClassificationFetched++
			classCache.Put(miss.key, models.ClassificationCacheEntry{Genres: genres, FetchedAt: now})
			for _, r := range miss.rows {
				applyGenres(&res.Rows[r], genres)
			}
		}
	}
}

// partition splits groups into consecutive batches of at most size.
func partition(groups []keyGroup, size int) [][]keyGroup {
	batches := make([][]keyGroup, 0, (len(groups)+size-1)/size)
	for start := 0; start < len(groups); start += size {
		end := min(start+size, len(groups))
		batches = append(batches, groups[start:end])
	}
	return batches
}

func (r *Result) degrade(miss keyGroup, providerName string, err error) {
	for _, i := range miss.rows {
		r.Degraded = append(r.Degraded, DegradedRow{
			NaturalKey: r.Rows[i].NaturalKey,
			Title:      r.Rows[i].RawTitle,
			Provider:   providerName,
			Reason:     err.Error(),
		})
	}
}

// call runs fn until it succeeds, fails permanently, or the retry budget is
// spent. Every attempt first waits on limiter.
func (o *Orchestrator) call(ctx context.Context, limiter *rate.Limiter, providerName string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: wait for rate limit: %w", providerName, err)
		}

		start := time.Now()
		err := fn(ctx)
		metrics.RecordFetch(providerName, provider.Outcome(err), time.Since(start))
		if err == nil {
			return nil
		}
		if !provider.IsTransient(err) || attempt >= o.opts.MaxRetries || ctx.Err() != nil {
			return err
		}

		delay := o.backoff(attempt, provider.RetryAfter(err))
		metrics.FetchRetries.WithLabelValues(providerName).Inc()
		logging.Ctx(ctx).Debug().Err(err).Str("provider", providerName).Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying transient fetch failure")

		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// backoff returns base * 2^attempt capped at the max delay, or the server's
// Retry-After when that is longer.
func (o *Orchestrator) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := o.opts.RetryBaseDelay
	for i := 0; i < attempt && delay < o.opts.RetryMaxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, o.opts.RetryMaxDelay)
	return max(delay, retryAfter)
}

func applyMetadata(row *models.StagingRow, meta *models.TitleMetadata) {
	if meta.Studio != nil {
		v := *meta.Studio
		row.Studio = &v
	}
	if meta.Score != nil {
		v := *meta.Score
		row.ExternalScore = &v
	}
	if row.TotalEpisodes == nil && meta.Episodes != nil {
		v := *meta.Episodes
		row.TotalEpisodes = &v
	}
	row.MetadataResolved = true
}

func applyGenres(row *models.StagingRow, genres []string) {
	row.Genres = normalize.Genres(genres)
	row.GenresResolved = true
}
