// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package database persists the title_history dimension table in DuckDB.

Every title version is one row. A version is created by an INSERT and only
ever changed once afterwards, when a later merge expires it by setting
valid_to and clearing is_current. Both steps of a merge run in a single
transaction (see DB.ApplyMerge), so readers observe either the whole merge
or none of it.

Read paths:
  - CurrentRows: the current version of every title
  - History: every version of one natural key, oldest first
  - AsOf: the version of every title that was valid at an instant
  - CheckIntegrity: keys that break single-current or timeline contiguity

DuckDB holds an exclusive file lock, so one process owns the table at a
time. Timestamps are stored as UTC TIMESTAMP with microsecond precision.
*/
package database
