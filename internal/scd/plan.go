// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package scd

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
)

var (
	// ErrDuplicateCurrent means the current set holds two current versions
	// of one natural key. The table is already inconsistent; merging on top
	// of it would hide the damage.
	ErrDuplicateCurrent = errors.New("more than one current version for natural key")

	// ErrNotCurrent means a row passed as current is expired.
	ErrNotCurrent = errors.New("row passed as current is not current")

	// ErrClockSkew means the merge instant is earlier than the start of a
	// current version it would expire.
	ErrClockSkew = errors.New("merge time precedes current version")
)

// DuplicateKeyWarning reports a staging row discarded because another row
// in the same snapshot had the same natural key.
type DuplicateKeyWarning struct {
	NaturalKey     string `json:"natural_key"`
	KeptTitle      string `json:"kept_title"`
	DiscardedTitle string `json:"discarded_title"`
}

func (w DuplicateKeyWarning) String() string {
	return fmt.Sprintf("duplicate natural key %q: kept %q, discarded %q", w.NaturalKey, w.KeptTitle, w.DiscardedTitle)
}

// Classification lists the natural keys of a merge by outcome, each sorted.
type Classification struct {
	New        []string              `json:"new"`
	Changed    []string              `json:"changed"`
	Unchanged  []string              `json:"unchanged"`
	Duplicates []DuplicateKeyWarning `json:"duplicates,omitempty"`
}

// BuildPlan classifies staging rows against the current dimension rows and
// returns the write set. It performs no I/O. now is truncated to the
// table's microsecond precision and used for every version boundary and
// ingestion timestamp in the plan; newID supplies surrogate ids.
func BuildPlan(staging []models.StagingRow, current []models.DimensionRow, now time.Time, newID func() string) (*models.MergePlan, *Classification, error) {
	now = now.UTC().Truncate(time.Microsecond)

	currentByKey := make(map[string]*models.DimensionRow, len(current))
	for i := range current {
		row := &current[i]
		if !row.IsCurrent || row.ValidTo != nil {
			return nil, nil, fmt.Errorf("%w: %s (%s)", ErrNotCurrent, row.NaturalKey, row.SurrogateID)
		}
		if _, dup := currentByKey[row.NaturalKey]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateCurrent, row.NaturalKey)
		}
		currentByKey[row.NaturalKey] = row
	}

	winners, duplicates := dedupe(staging)

	plan := &models.MergePlan{MergedAt: now}
	class := &Classification{Duplicates: duplicates}

	for _, candidate := range winners {
		row := candidate.Clone()
		row.Genres = normalize.Genres(row.Genres)

		cur, exists := currentByKey[row.NaturalKey]
		if !exists {
			class.New = append(class.New, row.NaturalKey)
			plan.Inserts = append(plan.Inserts, newVersion(row, now, newID))
			continue
		}

		carryForward(&row, &cur.StagingRow)

		stagedFP, err := Fingerprint(&row)
		if err != nil {
			return nil, nil, err
		}
		currentFP, err := Fingerprint(&cur.StagingRow)
		if err != nil {
			return nil, nil, err
		}
		if stagedFP == currentFP {
			class.Unchanged = append(class.Unchanged, row.NaturalKey)
			continue
		}

		if now.Before(cur.ValidFrom) {
			return nil, nil, fmt.Errorf("%w: %s valid from %s, merge at %s",
				ErrClockSkew, row.NaturalKey, cur.ValidFrom.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		}

		class.Changed = append(class.Changed, row.NaturalKey)
		plan.Expirations = append(plan.Expirations, models.Expiration{
			SurrogateID: cur.SurrogateID,
			NaturalKey:  cur.NaturalKey,
			ValidTo:     now,
		})
		plan.Inserts = append(plan.Inserts, newVersion(row, now, newID))
	}

	return plan, class, nil
}

func newVersion(row models.StagingRow, now time.Time, newID func() string) models.DimensionRow {
	row.FirstWatchedAt = row.FirstWatchedAt.UTC().Truncate(time.Microsecond)
	row.LastWatchedAt = row.LastWatchedAt.UTC().Truncate(time.Microsecond)
	return models.DimensionRow{
		StagingRow:         row,
		SurrogateID:        newID(),
		ValidFrom:          now,
		IsCurrent:          true,
		IngestionTimestamp: now,
	}
}

// carryForward fills unresolved enrichment from the current version.
func carryForward(row, cur *models.StagingRow) {
	if !row.MetadataResolved {
		row.Studio = cloneString(cur.Studio)
		row.ExternalScore = cloneFloat(cur.ExternalScore)
		if row.TotalEpisodes == nil && cur.TotalEpisodes != nil {
			v := *cur.TotalEpisodes
			row.TotalEpisodes = &v
		}
	}
	if !row.GenresResolved {
		row.Genres = normalize.Genres(cur.Genres)
	}
}

// dedupe keeps one row per natural key, sorted by key. Between rows sharing
// a key it keeps the latest LastWatchedAt, then the most episodes, then the
// lexically smaller raw title.
func dedupe(staging []models.StagingRow) ([]models.StagingRow, []DuplicateKeyWarning) {
	byKey := make(map[string]int, len(staging))
	var kept []models.StagingRow
	var warnings []DuplicateKeyWarning

	for i := range staging {
		row := staging[i]
		idx, seen := byKey[row.NaturalKey]
		if !seen {
			byKey[row.NaturalKey] = len(kept)
			kept = append(kept, row)
			continue
		}

		incumbent := kept[idx]
		if preferred(&row, &incumbent) {
			kept[idx] = row
			warnings = append(warnings, DuplicateKeyWarning{NaturalKey: row.NaturalKey, KeptTitle: row.RawTitle, DiscardedTitle: incumbent.RawTitle})
		} else {
			warnings = append(warnings, DuplicateKeyWarning{NaturalKey: row.NaturalKey, KeptTitle: incumbent.RawTitle, DiscardedTitle: row.RawTitle})
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].NaturalKey < kept[j].NaturalKey })
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].NaturalKey < warnings[j].NaturalKey })
	return kept, warnings
}

// preferred reports whether a should replace b.
func preferred(a, b *models.StagingRow) bool {
	if !a.LastWatchedAt.Equal(b.LastWatchedAt) {
		return a.LastWatchedAt.After(b.LastWatchedAt)
	}
	if a.EpisodesWatched != b.EpisodesWatched {
		return a.EpisodesWatched > b.EpisodesWatched
	}
	return a.RawTitle < b.RawTitle
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
