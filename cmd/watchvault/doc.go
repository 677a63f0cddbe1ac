// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Command watchvault maintains a versioned warehouse of viewing history.

Each run aggregates a raw export into one row per title, enriches the rows
from the badger cache and the configured providers, and merges them into the
DuckDB title_history table as SCD2 versions.

	watchvault run --events events.jsonl --ratings ratings.jsonl
	watchvault current [--as-of 2025-06-01T00:00:00Z]
	watchvault history --title "Frieren" --type tv --year 2023
	watchvault verify
	watchvault serve [--interval 6h]

Configuration comes from defaults, an optional YAML file (--config or
$CONFIG_PATH) and environment variables, in that order. Logs go to stderr;
command results are printed to stdout as JSON.

Exit status is 1 on error and 2 when verify finds integrity violations.
*/
package main
