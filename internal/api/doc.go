// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package api serves the read-only audit surface over the title_history
dimension table.

Routes:

	GET /health                    database reachability and current title count
	GET /metrics                   Prometheus exposition
	GET /api/v1/titles             current versions, or ?as_of=RFC3339 snapshot
	GET /api/v1/titles/history     every version of ?key=, or of ?title=&type=&year=
	GET /api/v1/integrity          dimension invariants (current count, validity, gaps)

Every JSON body is a models.APIResponse envelope. Errors carry a machine
readable code (VALIDATION_ERROR, NOT_FOUND, DATABASE_ERROR).

The /api/v1 group is rate limited per client IP with go-chi/httprate and
instrumented by middleware.PrometheusMetrics. The API never writes; runs are
performed by the pipeline.
*/
package api
