// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Versioned schema migrations.
//
// Each migration runs exactly once and is recorded in schema_migrations.
// Append new migrations with the next version number; never edit one that
// has shipped.

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/watchvault/internal/logging"
)

// Migration is one forward-only schema change. AppliedAt is only set on
// values read back from schema_migrations.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	AppliedAt   time.Time
}

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL
);`

// migrations is the full schema history, in version order.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "create_title_history",
		Description: "SCD2 dimension table, one row per title version",
		SQL: `
CREATE TABLE IF NOT EXISTS title_history (
	surrogate_id VARCHAR PRIMARY KEY,
	natural_key VARCHAR NOT NULL,
	raw_title VARCHAR NOT NULL,
	release_year INTEGER NOT NULL,
	media_type VARCHAR NOT NULL,
	user_rating DOUBLE,
	episodes_watched INTEGER NOT NULL,
	total_episodes INTEGER,
	first_watched_at TIMESTAMP NOT NULL,
	last_watched_at TIMESTAMP NOT NULL,
	watch_duration_days INTEGER NOT NULL,
	binge_indicator DOUBLE NOT NULL,
	studio VARCHAR,
	external_score DOUBLE,
	genres VARCHAR NOT NULL DEFAULT '[]',
	valid_from TIMESTAMP NOT NULL,
	valid_to TIMESTAMP,
	is_current BOOLEAN NOT NULL,
	ingestion_timestamp TIMESTAMP NOT NULL
);`,
	},
	{
		Version:     2,
		Name:        "index_title_history_timeline",
		Description: "Timeline lookups by natural key ordered by valid_from",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_title_history_key_from ON title_history (natural_key, valid_from);`,
	},
}

func (db *DB) getMigrations() []Migration { return migrations }

// migrate applies every migration newer than the recorded schema version.
// Each one commits together with its schema_migrations row.
func (db *DB) migrate() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, createSchemaMigrations); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	current, err := db.GetCurrentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Name, err)
		}
		applied++
	}
	if applied > 0 {
		logging.Info().Int("applied", applied).Int("version", migrations[len(migrations)-1].Version).Msg("Schema migrated")
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Name, m.Description, time.Now().UTC()); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

// GetCurrentSchemaVersion returns the highest applied migration version, or
// 0 on a fresh database.
func (db *DB) GetCurrentSchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var version int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// GetMigrationHistory lists applied migrations oldest first.
func (db *DB) GetMigrationHistory(ctx context.Context) ([]Migration, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT version, name, COALESCE(description, ''), applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query migration history: %w", err)
	}
	defer closeWithLog(rows, "migration rows")

	var history []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}
