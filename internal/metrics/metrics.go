// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package metrics holds the Prometheus instrumentation for Watchvault.
//
// Batch runs publish through a node-exporter textfile (WriteTextfile); the
// audit API serves the same registry on /metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every series, so duckdb_query_duration_seconds is
// exported as watchvault_duckdb_query_duration_seconds.
const namespace = "watchvault"

func counter(subsystem, name, help string) prometheus.Counter {
	return promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func gaugeVec(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64) prometheus.Histogram {
	return promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

var fetchBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// DuckDB
var (
	DBQueryDuration = histogramVec("duckdb", "query_duration_seconds",
		"Duration of DuckDB queries in seconds", prometheus.DefBuckets, "operation", "table")
	DBQueryErrors = counterVec("duckdb", "query_errors_total",
		"DuckDB query errors", "operation", "table", "error_type")
)

// Enrichment cache, labeled by namespace (metadata or classification).
var (
	CacheHits           = counterVec("enrichment", "cache_hits_total", "Enrichment cache hits", "namespace")
	CacheMisses         = counterVec("enrichment", "cache_misses_total", "Enrichment cache misses", "namespace")
	CacheEntries        = gaugeVec("enrichment", "cache_entries", "Entries in the bulk-loaded cache snapshot", "namespace")
	CacheFlushedEntries = counterVec("enrichment", "cache_flushed_entries_total", "Staged cache entries persisted by flush", "namespace")
	CacheFlushErrors    = counterVec("enrichment", "cache_flush_errors_total", "Failed cache flushes", "namespace")
)

// External providers. result is one of success, not_found, transient,
// malformed or error.
var (
	FetchRequests = counterVec("enrichment", "fetch_requests_total", "External enrichment calls by outcome", "provider", "result")
	FetchDuration = histogramVec("enrichment", "fetch_duration_seconds", "Duration of external enrichment calls in seconds", fetchBuckets, "provider")
	FetchRetries  = counterVec("enrichment", "fetch_retries_total", "Retried external enrichment calls", "provider")
	DegradedRows  = counterVec("enrichment", "degraded_rows_total", "Staging rows left without enrichment", "provider")
)

// Circuit breakers around the providers.
var (
	CircuitBreakerState               = gaugeVec("circuit_breaker", "state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", "name")
	CircuitBreakerRequests            = counterVec("circuit_breaker", "requests_total", "Requests through the circuit breaker", "name", "result")
	CircuitBreakerConsecutiveFailures = gaugeVec("circuit_breaker", "consecutive_failures", "Current consecutive failures", "name")
	CircuitBreakerTransitions         = counterVec("circuit_breaker", "state_transitions_total", "Circuit breaker state transitions", "name", "from_state", "to_state")
)

// SCD2 merge. classification is new, changed, unchanged or duplicate.
var (
	MergeRows     = counterVec("scd", "merge_rows_total", "Staging rows by merge classification", "classification")
	MergeDuration = histogram("scd", "merge_duration_seconds", "Duration of dimension merges in seconds", prometheus.DefBuckets)
	MergeFailures = counter("scd", "merge_failures_total", "Rolled back dimension merges")
)

// Pipeline runs.
var (
	RunDuration = histogram("pipeline", "run_duration_seconds", "Duration of full pipeline runs in seconds",
		[]float64{1, 5, 15, 30, 60, 120, 300, 600, 1800})
	RunErrors      = counterVec("pipeline", "run_errors_total", "Failed pipeline runs by stage", "stage")
	RunLastSuccess = gauge("pipeline", "last_success_timestamp", "Unix timestamp of the last successful pipeline run")
)

// Audit API.
var (
	APIRequestsTotal   = counterVec("api", "requests_total", "API requests", "method", "endpoint", "status_code")
	APIRequestDuration = histogramVec("api", "request_duration_seconds", "Duration of API requests in seconds",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5}, "method", "endpoint")
	APIActiveRequests = gauge("api", "active_requests", "In-flight API requests")
)

// RecordDBQuery observes one DuckDB statement. The error label keeps the
// first 50 bytes of the message to bound cardinality.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err == nil {
		return
	}
	label := err.Error()
	if len(label) > 50 {
		label = label[:50]
	}
	DBQueryErrors.WithLabelValues(operation, table, label).Inc()
}

// RecordCacheLookup records a hit or miss against a cache namespace.
func RecordCacheLookup(namespace string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(namespace).Inc()
		return
	}
	CacheMisses.WithLabelValues(namespace).Inc()
}

// RecordCacheFlush records the outcome of a namespace flush.
func RecordCacheFlush(namespace string, entries int, err error) {
	if err != nil {
		CacheFlushErrors.WithLabelValues(namespace).Inc()
		return
	}
	CacheFlushedEntries.WithLabelValues(namespace).Add(float64(entries))
}

// RecordFetch records one external call and its outcome.
func RecordFetch(provider, result string, duration time.Duration) {
	FetchRequests.WithLabelValues(provider, result).Inc()
	FetchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordMerge records the classification counts of a committed merge.
func RecordMerge(inserted, changed, unchanged, duplicates int, duration time.Duration) {
	MergeRows.WithLabelValues("new").Add(float64(inserted))
	MergeRows.WithLabelValues("changed").Add(float64(changed))
	MergeRows.WithLabelValues("unchanged").Add(float64(unchanged))
	MergeRows.WithLabelValues("duplicate").Add(float64(duplicates))
	MergeDuration.Observe(duration.Seconds())
}

// RecordRun records a pipeline run. stage names where a failed run stopped.
func RecordRun(duration time.Duration, stage string, err error) {
	RunDuration.Observe(duration.Seconds())
	if err != nil {
		RunErrors.WithLabelValues(stage).Inc()
		return
	}
	RunLastSuccess.Set(float64(time.Now().Unix()))
}

func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge up on entry and down on exit.
func TrackActiveRequest(entering bool) {
	if entering {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// WriteTextfile writes the default registry to path in the text exposition
// format, for the node-exporter textfile collector. The write goes through a
// temporary file and a rename so the collector never reads a partial file.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
