// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/watchvault/internal/metrics"
	"github.com/tomtom215/watchvault/internal/models"
)

// Violation kinds reported by CheckIntegrity.
const (
	ViolationCurrentCount   = "current_count"
	ViolationCurrentValidTo = "current_valid_to"
	ViolationTimelineGap    = "timeline_gap"
)

const currentCountQuery = `
SELECT natural_key, COUNT(*) FILTER (WHERE is_current) AS current_versions
FROM title_history
GROUP BY natural_key
HAVING COUNT(*) FILTER (WHERE is_current) <> 1
ORDER BY natural_key`

const currentValidToQuery = `
SELECT natural_key, surrogate_id, valid_to
FROM title_history
WHERE is_current AND valid_to IS NOT NULL
ORDER BY natural_key`

// Each version must end exactly where the next one (by valid_from) begins.
const timelineGapQuery = `
SELECT natural_key, surrogate_id, valid_to, next_from
FROM (
	SELECT natural_key, surrogate_id, valid_to,
		LEAD(valid_from) OVER (PARTITION BY natural_key ORDER BY valid_from) AS next_from
	FROM title_history
) t
WHERE next_from IS NOT NULL AND (valid_to IS NULL OR valid_to <> next_from)
ORDER BY natural_key, next_from`

// CheckIntegrity scans the whole table for broken SCD2 invariants. An empty
// result means every key has exactly one current version and a contiguous
// timeline.
func (db *DB) CheckIntegrity(ctx context.Context) (out []models.IntegrityViolation, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("check_integrity", titleHistoryTable, time.Since(start), err)
	}()

	counts, err := db.integrityRows(ctx, currentCountQuery, func(rows *sql.Rows) (models.IntegrityViolation, error) {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return models.IntegrityViolation{}, err
		}
		return models.IntegrityViolation{
			NaturalKey: key,
			Kind:       ViolationCurrentCount,
			Detail:     fmt.Sprintf("%d current versions", n),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	validTo, err := db.integrityRows(ctx, currentValidToQuery, func(rows *sql.Rows) (models.IntegrityViolation, error) {
		var key, id string
		var to time.Time
		if err := rows.Scan(&key, &id, &to); err != nil {
			return models.IntegrityViolation{}, err
		}
		return models.IntegrityViolation{
			NaturalKey: key,
			Kind:       ViolationCurrentValidTo,
			Detail:     fmt.Sprintf("current version %s has valid_to %s", id, to.UTC().Format(time.RFC3339Nano)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	gaps, err := db.integrityRows(ctx, timelineGapQuery, func(rows *sql.Rows) (models.IntegrityViolation, error) {
		var key, id string
		var to sql.NullTime
		var next time.Time
		if err := rows.Scan(&key, &id, &to, &next); err != nil {
			return models.IntegrityViolation{}, err
		}
		end := "open"
		if to.Valid {
			end = to.Time.UTC().Format(time.RFC3339Nano)
		}
		return models.IntegrityViolation{
			NaturalKey: key,
			Kind:       ViolationTimelineGap,
			Detail:     fmt.Sprintf("version %s ends %s but next version starts %s", id, end, next.UTC().Format(time.RFC3339Nano)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	out = append(out, counts...)
	out = append(out, validTo...)
	out = append(out, gaps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].NaturalKey < out[j].NaturalKey })
	return out, nil
}

func (db *DB) integrityRows(ctx context.Context, query string, scan func(*sql.Rows) (models.IntegrityViolation, error)) ([]models.IntegrityViolation, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run integrity query: %w", err)
	}
	defer closeWithLog(rows, "integrity rows")

	var out []models.IntegrityViolation
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integrity row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
