// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/models"
)

// testDBSemaphore serializes DuckDB usage across parallel tests; concurrent
// CGO connections from many tests can hang under CI resource pressure. The
// slot is held for the whole test and released in t.Cleanup.
var testDBSemaphore = make(chan struct{}, 1)

var testDBMutex sync.Mutex

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	return openTestDB(t, ":memory:")
}

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	testDBMutex.Lock()
	db, err := New(&config.DatabaseConfig{Path: path, MaxMemory: "512MB", Threads: 2})
	testDBMutex.Unlock()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func TestNew_MigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watchvault.duckdb")
	ctx := context.Background()

	func() {
		testDBSemaphore <- struct{}{}
		defer func() { <-testDBSemaphore }()
		db, err := New(&config.DatabaseConfig{Path: path, MaxMemory: "512MB"})
		if err != nil {
			t.Fatalf("first New() error = %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}()

	db := openTestDB(t, path)
	version, err := db.GetCurrentSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion() error = %v", err)
	}
	if version != len(db.getMigrations()) {
		t.Errorf("schema version = %d, want %d", version, len(db.getMigrations()))
	}

	history, err := db.GetMigrationHistory(ctx)
	if err != nil {
		t.Fatalf("GetMigrationHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].Name != "create_title_history" {
		t.Errorf("migration history = %+v", history)
	}
	if history[0].AppliedAt.IsZero() {
		t.Error("AppliedAt should be populated")
	}
	if db.Path() != path {
		t.Errorf("Path() = %q", db.Path())
	}
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestDB_EnsureContext(t *testing.T) {
	db := &DB{}

	//nolint:staticcheck // nil context is handled explicitly
	ctx, cancel := db.ensureContext(nil)
	if _, ok := ctx.Deadline(); !ok {
		t.Error("nil context should get a deadline")
	}
	cancel()

	ctx, cancel = db.ensureContext(context.Background())
	if _, ok := ctx.Deadline(); !ok {
		t.Error("context without deadline should get one")
	}
	cancel()

	parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
	defer parentCancel()
	want, _ := parent.Deadline()
	ctx, cancel = db.ensureContext(parent)
	defer cancel()
	if got, _ := ctx.Deadline(); !got.Equal(want) {
		t.Errorf("existing deadline replaced: got %v, want %v", got, want)
	}
}

func TestNullable(t *testing.T) {
	if got := nullable[float64](nil); got != nil {
		t.Errorf("nullable(nil) = %v, want nil", got)
	}
	v := 7.5
	if got := nullable(&v); got != 7.5 {
		t.Errorf("nullable(&7.5) = %v", got)
	}
}

// version builds a dimension row for direct inserts in tests.
func version(key, id string, from time.Time, to *time.Time) models.DimensionRow {
	return models.DimensionRow{
		StagingRow: models.StagingRow{
			NaturalKey:        key,
			RawTitle:          key,
			Year:              2020,
			MediaType:         "tv",
			EpisodesWatched:   1,
			FirstWatchedAt:    from.Add(-time.Hour),
			LastWatchedAt:     from.Add(-time.Hour),
			WatchDurationDays: 1,
			BingeIndicator:    1,
		},
		SurrogateID:        id,
		ValidFrom:          from,
		ValidTo:            to,
		IsCurrent:          to == nil,
		IngestionTimestamp: from,
	}
}
