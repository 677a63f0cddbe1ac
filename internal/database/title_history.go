// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/metrics"
	"github.com/tomtom215/watchvault/internal/models"
)

const titleHistoryTable = "title_history"

// dimensionColumns is the column order shared by every read and the insert.
const dimensionColumns = `surrogate_id, natural_key, raw_title, release_year, media_type,
	user_rating, episodes_watched, total_episodes, first_watched_at, last_watched_at,
	watch_duration_days, binge_indicator, studio, external_score, genres,
	valid_from, valid_to, is_current, ingestion_timestamp`

const insertVersionSQL = `INSERT INTO title_history (` + dimensionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// The is_current guard makes a stale or replayed plan fail instead of
// expiring an already-expired version a second time.
const expireVersionSQL = `UPDATE title_history
	SET valid_to = ?, is_current = false
	WHERE surrogate_id = ? AND is_current`

// CurrentRows returns the current version of every title, ordered by natural key.
func (db *DB) CurrentRows(ctx context.Context) ([]models.DimensionRow, error) {
	return db.queryVersions(ctx, "current_rows",
		`SELECT `+dimensionColumns+` FROM title_history WHERE is_current ORDER BY natural_key`)
}

// History returns every version of naturalKey, oldest first.
func (db *DB) History(ctx context.Context, naturalKey string) ([]models.DimensionRow, error) {
	return db.queryVersions(ctx, "history",
		`SELECT `+dimensionColumns+` FROM title_history WHERE natural_key = ? ORDER BY valid_from`,
		naturalKey)
}

// AsOf returns the version of every title that was valid at ts, ordered by
// natural key. Intervals are half-open: a version expired at exactly ts is
// already superseded.
func (db *DB) AsOf(ctx context.Context, ts time.Time) ([]models.DimensionRow, error) {
	ts = ts.UTC()
	return db.queryVersions(ctx, "as_of",
		`SELECT `+dimensionColumns+` FROM title_history
		WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY natural_key`,
		ts, ts)
}

// Counts returns the number of stored versions and of current rows.
func (db *DB) Counts(ctx context.Context) (versions, current int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_current) FROM title_history`).Scan(&versions, &current)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count title versions: %w", err)
	}
	return versions, current, nil
}

// ApplyMerge commits every expiration and insert of plan in one transaction.
// Each expiration must match exactly one current row; otherwise the whole
// plan is rolled back with ErrExpireConflict. A ctx without a deadline gets
// the default query timeout.
func (db *DB) ApplyMerge(ctx context.Context, plan *models.MergePlan) (err error) {
	if plan == nil || plan.Empty() {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("apply_merge", titleHistoryTable, time.Since(start), err)
	}()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	for i := range plan.Expirations {
		exp := &plan.Expirations[i]
		res, execErr := tx.ExecContext(ctx, expireVersionSQL, exp.ValidTo.UTC(), exp.SurrogateID)
		if execErr != nil {
			return fmt.Errorf("failed to expire %s (%s): %w", exp.NaturalKey, exp.SurrogateID, execErr)
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("failed to read affected rows for %s: %w", exp.NaturalKey, raErr)
		}
		if affected != 1 {
			return fmt.Errorf("%w: %s (%s) matched %d rows", ErrExpireConflict, exp.NaturalKey, exp.SurrogateID, affected)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertVersionSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeWithLog(stmt, "insert statement")

	for i := range plan.Inserts {
		args, argErr := versionArgs(&plan.Inserts[i])
		if argErr != nil {
			return argErr
		}
		if _, execErr := stmt.ExecContext(ctx, args...); execErr != nil {
			return fmt.Errorf("failed to insert version of %s: %w", plan.Inserts[i].NaturalKey, execErr)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}

	logging.Ctx(ctx).Debug().
		Int("expired", len(plan.Expirations)).
		Int("inserted", len(plan.Inserts)).
		Dur("duration", time.Since(start)).
		Msg("Merge transaction committed")
	return nil
}

func (db *DB) queryVersions(ctx context.Context, operation, query string, args ...any) (out []models.DimensionRow, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordDBQuery(operation, titleHistoryTable, time.Since(start), err)
	}()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", operation, err)
	}
	defer closeWithLog(rows, "title_history rows")

	for rows.Next() {
		row, scanErr := scanVersion(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", operation, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(s rowScanner) (models.DimensionRow, error) {
	var (
		r             models.DimensionRow
		userRating    sql.NullFloat64
		totalEpisodes sql.NullInt64
		studio        sql.NullString
		externalScore sql.NullFloat64
		genres        string
		validTo       sql.NullTime
	)
	err := s.Scan(
		&r.SurrogateID, &r.NaturalKey, &r.RawTitle, &r.Year, &r.MediaType,
		&userRating, &r.EpisodesWatched, &totalEpisodes, &r.FirstWatchedAt, &r.LastWatchedAt,
		&r.WatchDurationDays, &r.BingeIndicator, &studio, &externalScore, &genres,
		&r.ValidFrom, &validTo, &r.IsCurrent, &r.IngestionTimestamp,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan title version: %w", err)
	}

	if userRating.Valid {
		r.UserRating = &userRating.Float64
	}
	if totalEpisodes.Valid {
		v := int(totalEpisodes.Int64)
		r.TotalEpisodes = &v
	}
	if studio.Valid {
		r.Studio = &studio.String
	}
	if externalScore.Valid {
		r.ExternalScore = &externalScore.Float64
	}
	if validTo.Valid {
		v := validTo.Time.UTC()
		r.ValidTo = &v
	}
	if err := json.Unmarshal([]byte(genres), &r.Genres); err != nil {
		return r, fmt.Errorf("failed to decode genres of %s: %w", r.SurrogateID, err)
	}
	if len(r.Genres) == 0 {
		r.Genres = nil
	}

	r.FirstWatchedAt = r.FirstWatchedAt.UTC()
	r.LastWatchedAt = r.LastWatchedAt.UTC()
	r.ValidFrom = r.ValidFrom.UTC()
	r.IngestionTimestamp = r.IngestionTimestamp.UTC()

	// Persisted enrichment is whatever resolved when the version was written.
	r.MetadataResolved = true
	r.GenresResolved = true
	return r, nil
}

func versionArgs(r *models.DimensionRow) ([]any, error) {
	genres := r.Genres
	if genres == nil {
		genres = []string{}
	}
	genresJSON, err := json.Marshal(genres)
	if err != nil {
		return nil, fmt.Errorf("failed to encode genres of %s: %w", r.NaturalKey, err)
	}

	var validTo any
	if r.ValidTo != nil {
		validTo = r.ValidTo.UTC()
	}

	return []any{
		r.SurrogateID, r.NaturalKey, r.RawTitle, r.Year, r.MediaType,
		nullable(r.UserRating), r.EpisodesWatched, nullable(r.TotalEpisodes),
		r.FirstWatchedAt.UTC(), r.LastWatchedAt.UTC(),
		r.WatchDurationDays, r.BingeIndicator, nullable(r.Studio), nullable(r.ExternalScore),
		string(genresJSON),
		r.ValidFrom.UTC(), validTo, r.IsCurrent, r.IngestionTimestamp.UTC(),
	}, nil
}

// nullable turns a nil pointer into SQL NULL and dereferences the rest.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
