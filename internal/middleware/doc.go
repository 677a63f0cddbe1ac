// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package middleware provides chi-compatible HTTP middleware for the audit API.

  - RequestID: X-Request-ID propagation plus request and correlation ids in
    the logging context
  - PrometheusMetrics: request counts, latency and in-flight gauge, labelled
    by the chi route pattern so path parameters never create new series

Both have the func(http.Handler) http.Handler shape and are mounted with
r.Use in the api package.
*/
package middleware
