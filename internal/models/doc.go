// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package models defines the data structures shared across Watchvault.

Row lifecycle:

  - RawEvent, Rating: external input records, never mutated
  - StagingRow: one per logical title per run, produced by the aggregator and
    enriched by the orchestrator, discarded after the merge
  - DimensionRow: a persisted, versioned row of the title_history table
  - MergePlan: the expire and insert set the merge engine commits in one transaction

Enrichment payloads (TitleMetadata, ClassificationResult) are validated at
the provider boundary so malformed responses never reach the merge.
*/
package models
