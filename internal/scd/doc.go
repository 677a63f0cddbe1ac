// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package scd merges enriched staging rows into the title_history dimension
// table as a Slowly Changing Dimension of type 2.
//
// # Classification
//
// Every staging row is compared with the current version of its natural key:
//
//   - NEW: no current version exists. The row is inserted as current.
//   - CHANGED: the change fingerprint differs. The current version is
//     expired (ValidTo = now, IsCurrent = false) and the row is inserted as
//     the new current version with ValidFrom = now.
//   - UNCHANGED: fingerprints match. Nothing is written.
//
// Current versions whose key is absent from the staging snapshot are left
// as they are.
//
// # Fingerprint
//
// Fingerprint hashes the comparable fields only (rating, episode counts,
// genres, studio, external score, last watch time). Ingestion timestamps,
// display spelling and derived rates are excluded, so re-running an
// unchanged export creates no versions.
//
// Enrichment that did not resolve this run (a degraded row) is carried
// forward from the current version before fingerprinting, so an outage at a
// provider does not look like the title losing its studio or genres.
// The carried studio, external score, total episodes and genres are copied
// into any new version the row produces. Such a value was fetched for an
// earlier version, so it can be older than the IngestionTimestamp of the
// version that now holds it.
//
// # Atomicity
//
// BuildPlan is pure: it turns a staging snapshot and the current rows into
// a models.MergePlan. Engine.Merge stamps the whole batch with one instant
// and hands the plan to the Store, which must commit every expiration and
// insert in one transaction or none of them. Failures come back as a
// *MergeError naming the natural keys that were in flight.
//
// The engine assumes a single writer. Merge calls on one Engine are
// serialized; separate processes are kept apart by the database file lock.
package scd
