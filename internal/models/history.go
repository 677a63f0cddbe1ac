// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package models

import "time"

// RawEvent is one watch of an episode or movie from the viewing-history export.
type RawEvent struct {
	Title         string    `json:"title" validate:"required,max=512"`
	Year          int       `json:"year" validate:"gte=0,lte=3000"`
	MediaType     string    `json:"media_type" validate:"mediatype"`
	Episode       int       `json:"episode" validate:"gte=0"` // 0 for movies and single-part releases
	WatchedAt     time.Time `json:"watched_at" validate:"required"`
	TotalEpisodes *int      `json:"total_episodes,omitempty" validate:"omitempty,gte=0"`
}

// Rating is a user score for a title, keyed by the same natural-key scheme as RawEvent.
type Rating struct {
	Title     string    `json:"title" validate:"required,max=512"`
	Year      int       `json:"year" validate:"gte=0,lte=3000"`
	MediaType string    `json:"media_type" validate:"mediatype"`
	Score     float64   `json:"score" validate:"gte=0,lte=10"`
	RatedAt   time.Time `json:"rated_at"`
}

// StagingRow is the freshly computed record for one logical title in one run.
// Nullable enrichment fields are pointers; nil means unresolved or unknown.
type StagingRow struct {
	NaturalKey        string    `json:"natural_key"`
	RawTitle          string    `json:"raw_title"`
	Year              int       `json:"year"`
	MediaType         string    `json:"media_type"`
	UserRating        *float64  `json:"user_rating"`
	EpisodesWatched   int       `json:"episodes_watched"`
	TotalEpisodes     *int      `json:"total_episodes"`
	FirstWatchedAt    time.Time `json:"first_watched_at"`
	LastWatchedAt     time.Time `json:"last_watched_at"`
	WatchDurationDays int       `json:"watch_duration_days"`
	BingeIndicator    float64   `json:"binge_indicator"` // episodes per day of watch span
	Studio            *string   `json:"studio"`
	ExternalScore     *float64  `json:"external_score"`
	Genres            []string  `json:"genres"` // sorted, deduplicated

	// Resolution flags are run-local and never persisted. A false flag means
	// the corresponding enrichment fields did not resolve this run.
	MetadataResolved bool `json:"-"`
	GenresResolved   bool `json:"-"`
}

// Clone returns a deep copy so enrichment never mutates its input rows.
func (r StagingRow) Clone() StagingRow {
	out := r
	if r.UserRating != nil {
		v := *r.UserRating
		out.UserRating = &v
	}
	if r.TotalEpisodes != nil {
		v := *r.TotalEpisodes
		out.TotalEpisodes = &v
	}
	if r.Studio != nil {
		v := *r.Studio
		out.Studio = &v
	}
	if r.ExternalScore != nil {
		v := *r.ExternalScore
		out.ExternalScore = &v
	}
	if r.Genres != nil {
		out.Genres = append([]string(nil), r.Genres...)
	}
	return out
}

// DimensionRow is one persisted version of a title in title_history.
// Rows are only ever mutated to expire them (ValidTo set, IsCurrent false).
type DimensionRow struct {
	StagingRow

	SurrogateID        string     `json:"surrogate_id"`
	ValidFrom          time.Time  `json:"valid_from"`
	ValidTo            *time.Time `json:"valid_to"` // nil while current
	IsCurrent          bool       `json:"is_current"`
	IngestionTimestamp time.Time  `json:"ingestion_timestamp"`
}

// Expiration closes the current version of a natural key.
type Expiration struct {
	SurrogateID string    `json:"surrogate_id"`
	NaturalKey  string    `json:"natural_key"`
	ValidTo     time.Time `json:"valid_to"`
}

// MergePlan is the complete write set of one merge, committed atomically.
// Every expiration and insert in a plan shares MergedAt.
type MergePlan struct {
	MergedAt    time.Time      `json:"merged_at"`
	Expirations []Expiration   `json:"expirations"`
	Inserts     []DimensionRow `json:"inserts"`
}

// Keys returns every natural key the plan writes, in plan order.
func (p *MergePlan) Keys() []string {
	seen := make(map[string]struct{}, len(p.Inserts))
	keys := make([]string, 0, len(p.Inserts))
	for i := range p.Expirations {
		k := p.Expirations[i].NaturalKey
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for i := range p.Inserts {
		k := p.Inserts[i].NaturalKey
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Empty reports whether the plan writes nothing.
func (p *MergePlan) Empty() bool {
	return len(p.Expirations) == 0 && len(p.Inserts) == 0
}

// IntegrityViolation describes one broken dimension-table invariant.
type IntegrityViolation struct {
	NaturalKey string `json:"natural_key"`
	Kind       string `json:"kind"` // "current_count", "current_valid_to", "timeline_gap"
	Detail     string `json:"detail"`
}
