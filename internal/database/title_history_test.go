// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/scd"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }

func frieren(rating float64) models.StagingRow {
	watched := time.Date(2025, 11, 3, 22, 15, 30, 123456789, time.UTC)
	return models.StagingRow{
		NaturalKey:        "sousou no frieren|tv|2023",
		RawTitle:          "Sousou no Frieren",
		Year:              2023,
		MediaType:         "tv",
		UserRating:        floatPtr(rating),
		EpisodesWatched:   28,
		TotalEpisodes:     intPtr(28),
		FirstWatchedAt:    watched.Add(-96 * time.Hour),
		LastWatchedAt:     watched,
		WatchDurationDays: 5,
		BingeIndicator:    5.6,
		Studio:            strPtr("Madhouse"),
		ExternalScore:     floatPtr(9.3),
		Genres:            []string{"adventure", "drama", "fantasy"},
		MetadataResolved:  true,
		GenresResolved:    true,
	}
}

func TestApplyMerge_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mergedAt := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	full := models.DimensionRow{StagingRow: frieren(9), SurrogateID: "a", ValidFrom: mergedAt, IsCurrent: true, IngestionTimestamp: mergedAt}
	sparse := models.DimensionRow{
		StagingRow: models.StagingRow{
			NaturalKey:        "perfect blue|movie|1997",
			RawTitle:          "Perfect Blue",
			Year:              1997,
			MediaType:         "movie",
			EpisodesWatched:   1,
			FirstWatchedAt:    mergedAt.Add(-time.Hour),
			LastWatchedAt:     mergedAt.Add(-time.Hour),
			WatchDurationDays: 1,
			BingeIndicator:    1,
		},
		SurrogateID: "b", ValidFrom: mergedAt, IsCurrent: true, IngestionTimestamp: mergedAt,
	}

	if err := db.ApplyMerge(ctx, &models.MergePlan{MergedAt: mergedAt, Inserts: []models.DimensionRow{full, sparse}}); err != nil {
		t.Fatalf("ApplyMerge() error = %v", err)
	}

	rows, err := db.CurrentRows(ctx)
	if err != nil {
		t.Fatalf("CurrentRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("CurrentRows() = %d rows, want 2", len(rows))
	}

	// Ordered by natural key.
	blue, fr := rows[0], rows[1]
	if blue.UserRating != nil || blue.Studio != nil || blue.ExternalScore != nil || blue.TotalEpisodes != nil || blue.Genres != nil {
		t.Errorf("NULL columns should scan as nil: %+v", blue)
	}
	if fr.UserRating == nil || *fr.UserRating != 9 || *fr.Studio != "Madhouse" || *fr.ExternalScore != 9.3 || *fr.TotalEpisodes != 28 {
		t.Errorf("nullable columns lost: %+v", fr)
	}
	if !slices.Equal(fr.Genres, []string{"adventure", "drama", "fantasy"}) {
		t.Errorf("Genres = %v", fr.Genres)
	}
	if !fr.ValidFrom.Equal(mergedAt) || fr.ValidTo != nil || !fr.IsCurrent {
		t.Errorf("validity = %v..%v current=%v", fr.ValidFrom, fr.ValidTo, fr.IsCurrent)
	}
	// TIMESTAMP keeps microseconds; the test value has sub-microsecond digits.
	if want := frieren(9).LastWatchedAt.Truncate(time.Microsecond); !fr.LastWatchedAt.Equal(want) {
		t.Errorf("LastWatchedAt = %v, want %v", fr.LastWatchedAt, want)
	}
	if fr.LastWatchedAt.Location() != time.UTC {
		t.Errorf("timestamps should be UTC, got %v", fr.LastWatchedAt.Location())
	}
}

func TestApplyMerge_EmptyPlanIsNoop(t *testing.T) {
	db := setupTestDB(t)
	if err := db.ApplyMerge(context.Background(), &models.MergePlan{}); err != nil {
		t.Fatalf("ApplyMerge(empty) error = %v", err)
	}
	if err := db.ApplyMerge(context.Background(), nil); err != nil {
		t.Fatalf("ApplyMerge(nil) error = %v", err)
	}
}

func TestApplyMerge_ExpireConflictRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	seed := version("bleach|tv|2004", "v1", t0, nil)
	if err := db.ApplyMerge(ctx, &models.MergePlan{MergedAt: t0, Inserts: []models.DimensionRow{seed}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		surrogate string
	}{
		{"unknown surrogate id", "missing"},
		{"replayed expiration", "v1"},
	}

	// Expire v1 once for real so the replay case targets an expired row.
	next := version("bleach|tv|2004", "v2", t1, nil)
	good := &models.MergePlan{
		MergedAt:    t1,
		Expirations: []models.Expiration{{SurrogateID: "v1", NaturalKey: "bleach|tv|2004", ValidTo: t1}},
		Inserts:     []models.DimensionRow{next},
	}
	if err := db.ApplyMerge(ctx, good); err != nil {
		t.Fatalf("ApplyMerge() error = %v", err)
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := t1.Add(time.Duration(i+1) * time.Hour)
			plan := &models.MergePlan{
				MergedAt:    at,
				Expirations: []models.Expiration{{SurrogateID: tt.surrogate, NaturalKey: "bleach|tv|2004", ValidTo: at}},
				Inserts: []models.DimensionRow{
					version("bleach|tv|2004", fmt.Sprintf("bad-%d", i), at, nil),
					version("naruto|tv|2002", fmt.Sprintf("naruto-%d", i), at, nil),
				},
			}
			err := db.ApplyMerge(ctx, plan)
			if !errors.Is(err, ErrExpireConflict) {
				t.Fatalf("ApplyMerge() error = %v, want ErrExpireConflict", err)
			}

			versions, current, err := db.Counts(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if versions != 2 || current != 1 {
				t.Errorf("after rollback: %d versions, %d current; want 2, 1", versions, current)
			}
		})
	}
}

func TestApplyMerge_DefaultDeadline(t *testing.T) {
	db := setupTestDB(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	plan := &models.MergePlan{MergedAt: t0, Inserts: []models.DimensionRow{version("bleach|tv|2004", "v1", t0, nil)}}

	db.queryTimeout = time.Nanosecond
	err := db.ApplyMerge(context.Background(), plan)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ApplyMerge() error = %v, want context.DeadlineExceeded", err)
	}

	db.queryTimeout = 0
	versions, _, err := db.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if versions != 0 {
		t.Errorf("versions = %d after timed out merge, want 0", versions)
	}

	if err := db.ApplyMerge(context.Background(), plan); err != nil {
		t.Fatalf("ApplyMerge() with default timeout error = %v", err)
	}
}

func TestStore_EngineTimeline(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	n := 0
	engine := scd.NewEngine(db,
		scd.WithClock(func() time.Time { return now }),
		scd.WithIDGenerator(func() string { n++; return fmt.Sprintf("sk-%d", n) }),
	)

	// Run 1 inserts, run 2 changes the rating, run 3 is identical.
	for i, rating := range []float64{9, 10, 10} {
		now = base.Add(time.Duration(i) * 24 * time.Hour)
		if _, err := engine.Merge(ctx, []models.StagingRow{frieren(rating)}); err != nil {
			t.Fatalf("run %d Merge() error = %v", i+1, err)
		}
	}

	history, err := db.History(ctx, "sousou no frieren|tv|2023")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() = %d versions, want 2", len(history))
	}
	if *history[0].UserRating != 9 || *history[1].UserRating != 10 {
		t.Errorf("ratings = %v, %v", *history[0].UserRating, *history[1].UserRating)
	}
	if history[0].ValidTo == nil || !history[0].ValidTo.Equal(history[1].ValidFrom) {
		t.Errorf("timeline not contiguous: %v -> %v", history[0].ValidTo, history[1].ValidFrom)
	}

	violations, err := db.CheckIntegrity(ctx)
	if err != nil {
		t.Fatalf("CheckIntegrity() error = %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("CheckIntegrity() = %+v, want none", violations)
	}

	asOfTests := []struct {
		name   string
		at     time.Time
		rating float64
		rows   int
	}{
		{"before first merge", base.Add(-time.Second), 0, 0},
		{"at first merge", base, 9, 1},
		{"between merges", base.Add(12 * time.Hour), 9, 1},
		{"at boundary the new version wins", base.Add(24 * time.Hour), 10, 1},
		{"after last merge", base.Add(72 * time.Hour), 10, 1},
	}
	for _, tt := range asOfTests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := db.AsOf(ctx, tt.at)
			if err != nil {
				t.Fatalf("AsOf() error = %v", err)
			}
			if len(rows) != tt.rows {
				t.Fatalf("AsOf() = %d rows, want %d", len(rows), tt.rows)
			}
			if tt.rows == 1 && *rows[0].UserRating != tt.rating {
				t.Errorf("AsOf() rating = %v, want %v", *rows[0].UserRating, tt.rating)
			}
		})
	}
}
