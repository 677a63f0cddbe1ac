// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package scd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/watchvault/internal/models"
)

// memStore is an in-memory dimension table with all-or-nothing ApplyMerge.
type memStore struct {
	mu       sync.Mutex
	rows     []models.DimensionRow
	applyErr error
	applied  int
}

func (s *memStore) CurrentRows(ctx context.Context) ([]models.DimensionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DimensionRow
	for _, r := range s.rows {
		if r.IsCurrent {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ApplyMerge(ctx context.Context, plan *models.MergePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}

	next := slices.Clone(s.rows)
	for _, exp := range plan.Expirations {
		hit := 0
		for i := range next {
			if next[i].SurrogateID == exp.SurrogateID && next[i].IsCurrent {
				validTo := exp.ValidTo
				next[i].ValidTo = &validTo
				next[i].IsCurrent = false
				hit++
			}
		}
		if hit != 1 {
			return fmt.Errorf("expire %s: %d rows affected", exp.SurrogateID, hit)
		}
	}
	next = append(next, plan.Inserts...)
	s.rows = next
	s.applied++
	return nil
}

func (s *memStore) history(key string) []models.DimensionRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DimensionRow
	for _, r := range s.rows {
		if r.NaturalKey == key {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out
}

// assertInvariants checks single-current and timeline contiguity for every key.
func (s *memStore) assertInvariants(t *testing.T) {
	t.Helper()
	keys := map[string]struct{}{}
	s.mu.Lock()
	for _, r := range s.rows {
		keys[r.NaturalKey] = struct{}{}
	}
	s.mu.Unlock()

	for key := range keys {
		versions := s.history(key)
		current := 0
		for i, v := range versions {
			if v.IsCurrent {
				current++
				if v.ValidTo != nil {
					t.Errorf("%s: current version has ValidTo %v", key, *v.ValidTo)
				}
			}
			if i+1 < len(versions) {
				if v.ValidTo == nil || !v.ValidTo.Equal(versions[i+1].ValidFrom) {
					t.Errorf("%s: gap between version %d (to %v) and %d (from %v)", key, i, v.ValidTo, i+1, versions[i+1].ValidFrom)
				}
			}
		}
		if current != 1 {
			t.Errorf("%s: %d current versions, want 1", key, current)
		}
	}
}

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("sk-%03d", n)
	}
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

var watched = time.Date(2025, 12, 1, 21, 0, 0, 0, time.UTC)

func onePiece(rating float64) models.StagingRow {
	return models.StagingRow{
		NaturalKey:       "one piece|tv|2000",
		RawTitle:         "ONE PIECE",
		Year:             2000,
		MediaType:        "tv",
		UserRating:       floatPtr(rating),
		EpisodesWatched:  40,
		FirstWatchedAt:   watched.Add(-72 * time.Hour),
		LastWatchedAt:    watched,
		Studio:           strPtr("Toei Animation"),
		ExternalScore:    floatPtr(8.7),
		Genres:           []string{"adventure", "action"},
		MetadataResolved: true,
		GenresResolved:   true,
	}
}

func TestEngine_EndToEndVersioning(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := NewEngine(store, WithClock(clock.now), WithIDGenerator(sequentialIDs()))

	// Run 1: no existing row.
	res, err := engine.Merge(ctx, []models.StagingRow{onePiece(9)})
	if err != nil {
		t.Fatalf("run 1 Merge() error = %v", err)
	}
	if !slices.Equal(res.New, []string{"one piece|tv|2000"}) || res.Inserted != 1 || res.Expired != 0 {
		t.Errorf("run 1 result = %+v", res)
	}
	firstMerge := res.MergedAt

	// Run 2: rating changed.
	clock.advance(24 * time.Hour)
	res, err = engine.Merge(ctx, []models.StagingRow{onePiece(10)})
	if err != nil {
		t.Fatalf("run 2 Merge() error = %v", err)
	}
	if !slices.Equal(res.Changed, []string{"one piece|tv|2000"}) || res.Inserted != 1 || res.Expired != 1 {
		t.Errorf("run 2 result = %+v", res)
	}
	secondMerge := res.MergedAt

	history := store.history("one piece|tv|2000")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	old, cur := history[0], history[1]
	if old.IsCurrent || old.ValidTo == nil || !old.ValidTo.Equal(secondMerge) || !old.ValidFrom.Equal(firstMerge) {
		t.Errorf("expired version = %+v", old)
	}
	if !cur.IsCurrent || cur.ValidTo != nil || *cur.UserRating != 10 || !cur.ValidFrom.Equal(secondMerge) {
		t.Errorf("current version = %+v", cur)
	}
	if !cur.IngestionTimestamp.Equal(secondMerge) || cur.SurrogateID == old.SurrogateID {
		t.Errorf("new version should have a fresh id and ingestion time: %+v", cur)
	}

	// Run 3: identical data.
	clock.advance(24 * time.Hour)
	res, err = engine.Merge(ctx, []models.StagingRow{onePiece(10)})
	if err != nil {
		t.Fatalf("run 3 Merge() error = %v", err)
	}
	if len(res.Changed) != 0 || res.Inserted != 0 || !slices.Equal(res.Unchanged, []string{"one piece|tv|2000"}) {
		t.Errorf("run 3 result = %+v", res)
	}
	if got := len(store.history("one piece|tv|2000")); got != 2 {
		t.Errorf("history length after identical run = %d, want 2", got)
	}
	if store.applied != 2 {
		t.Errorf("ApplyMerge called %d times, want 2 (an empty plan writes nothing)", store.applied)
	}

	store.assertInvariants(t)
}

func TestEngine_OneInstantPerBatch(t *testing.T) {
	store := &memStore{}
	calls := 0
	engine := NewEngine(store, WithClock(func() time.Time {
		calls++
		return time.Date(2026, 2, 1, 0, 0, 0, calls, time.UTC)
	}))

	rows := make([]models.StagingRow, 10)
	for i := range rows {
		rows[i] = onePiece(float64(i % 10))
		rows[i].NaturalKey = fmt.Sprintf("title %d|tv|2000", i)
	}

	res, err := engine.Merge(context.Background(), rows)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("clock read %d times, want 1 per merge", calls)
	}
	for _, r := range store.rows {
		if !r.ValidFrom.Equal(res.MergedAt) || !r.IngestionTimestamp.Equal(res.MergedAt) {
			t.Errorf("row %s stamped %v, want batch instant %v", r.NaturalKey, r.ValidFrom, res.MergedAt)
		}
	}
}

func TestEngine_AbsentKeysUntouched(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := NewEngine(store, WithClock(clock.now))

	other := onePiece(6)
	other.NaturalKey = "bleach|tv|2004"
	if _, err := engine.Merge(ctx, []models.StagingRow{onePiece(9), other}); err != nil {
		t.Fatal(err)
	}

	clock.advance(time.Hour)
	if _, err := engine.Merge(ctx, []models.StagingRow{onePiece(7)}); err != nil {
		t.Fatal(err)
	}

	bleach := store.history("bleach|tv|2004")
	if len(bleach) != 1 || !bleach[0].IsCurrent {
		t.Errorf("absent key should stay current and unversioned: %+v", bleach)
	}
	store.assertInvariants(t)
}

func TestEngine_ApplyFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := NewEngine(store, WithClock(clock.now))

	if _, err := engine.Merge(ctx, []models.StagingRow{onePiece(9)}); err != nil {
		t.Fatal(err)
	}
	before := slices.Clone(store.rows)

	storageErr := errors.New("disk I/O error")
	store.applyErr = storageErr
	clock.advance(time.Hour)

	fresh := onePiece(5)
	fresh.NaturalKey = "naruto|tv|2002"
	_, err := engine.Merge(ctx, []models.StagingRow{onePiece(10), fresh})

	var mergeErr *MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("Merge() error = %v, want *MergeError", err)
	}
	if !errors.Is(err, storageErr) {
		t.Errorf("MergeError should wrap the storage error")
	}
	slices.Sort(mergeErr.Keys)
	if !slices.Equal(mergeErr.Keys, []string{"naruto|tv|2002", "one piece|tv|2000"}) {
		t.Errorf("in-flight keys = %v", mergeErr.Keys)
	}
	if len(store.rows) != len(before) || store.rows[0].ValidTo != nil {
		t.Error("failed merge must leave the table untouched")
	}

	// The retry on the next run is idempotent.
	store.applyErr = nil
	res, err := engine.Merge(ctx, []models.StagingRow{onePiece(10), fresh})
	if err != nil {
		t.Fatalf("retry Merge() error = %v", err)
	}
	if len(res.Changed) != 1 || len(res.New) != 1 {
		t.Errorf("retry result = %+v", res)
	}
	store.assertInvariants(t)
}

type brokenReader struct{ memStore }

func (b *brokenReader) CurrentRows(ctx context.Context) ([]models.DimensionRow, error) {
	return nil, errors.New("connection lost")
}

func TestEngine_CurrentRowsFailure(t *testing.T) {
	engine := NewEngine(&brokenReader{})
	_, err := engine.Merge(context.Background(), []models.StagingRow{onePiece(1), onePiece(2)})

	var mergeErr *MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("Merge() error = %v, want *MergeError", err)
	}
	if !slices.Equal(mergeErr.Keys, []string{"one piece|tv|2000"}) {
		t.Errorf("Keys = %v, want the deduplicated staging keys", mergeErr.Keys)
	}
}

func TestMergeError_Message(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	err := &MergeError{Keys: keys, Err: errors.New("boom")}
	want := "merge of 7 keys rolled back (a, b, c, d, e, ... 2 more): boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
