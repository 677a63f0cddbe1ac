// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package aggregate derives one staging row per logical title from raw
// viewing events.
//
// Per natural key:
//   - EpisodesWatched counts distinct episode numbers (a movie, episode 0,
//     counts once however often it was rewatched)
//   - FirstWatchedAt / LastWatchedAt are the min / max event timestamps
//   - WatchDurationDays is ceil((last - first) / 24h), never less than 1
//   - BingeIndicator is EpisodesWatched / WatchDurationDays
//
// Ratings attach by the same natural key; the latest RatedAt wins.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
)

const day = 24 * time.Hour

// Summary counts what Aggregate consumed and dropped.
type Summary struct {
	Events        int `json:"events"`
	SkippedEvents int `json:"skipped_events"` // title normalized to nothing
	Titles        int `json:"titles"`
	Ratings       int `json:"ratings"`
	OrphanRatings int `json:"orphan_ratings"` // no matching events
}

type group struct {
	row       models.StagingRow
	episodes  map[int]struct{}
	titleAt   time.Time
	hasRating bool
	ratedAt   time.Time
}

// Aggregate groups events by natural key and returns staging rows sorted by
// natural key. The result is deterministic for a given input set regardless
// of input order.
func Aggregate(events []models.RawEvent, ratings []models.Rating) ([]models.StagingRow, Summary) {
	summary := Summary{Events: len(events), Ratings: len(ratings)}
	groups := make(map[string]*group)

	for i := range events {
		ev := &events[i]
		if normalize.Title(ev.Title) == "" {
			summary.SkippedEvents++
			continue
		}

		key := normalize.NaturalKey(ev.Title, ev.MediaType, ev.Year)
		watchedAt := ev.WatchedAt.UTC()

		g, ok := groups[key]
		if !ok {
			g = &group{
				row: models.StagingRow{
					NaturalKey:     key,
					RawTitle:       ev.Title,
					Year:           ev.Year,
					MediaType:      normalizeMediaType(ev.MediaType),
					FirstWatchedAt: watchedAt,
					LastWatchedAt:  watchedAt,
				},
				episodes: make(map[int]struct{}),
				titleAt:  watchedAt,
			}
			groups[key] = g
		}

		g.episodes[ev.Episode] = struct{}{}

		if watchedAt.Before(g.row.FirstWatchedAt) {
			g.row.FirstWatchedAt = watchedAt
		}
		if watchedAt.After(g.row.LastWatchedAt) {
			g.row.LastWatchedAt = watchedAt
		}

		// Display title follows the most recent event; equal timestamps
		// resolve to the lexically smaller spelling.
		if watchedAt.After(g.titleAt) || (watchedAt.Equal(g.titleAt) && ev.Title < g.row.RawTitle) {
			g.row.RawTitle = ev.Title
			g.titleAt = watchedAt
		}

		if ev.TotalEpisodes != nil && (g.row.TotalEpisodes == nil || *ev.TotalEpisodes > *g.row.TotalEpisodes) {
			v := *ev.TotalEpisodes
			g.row.TotalEpisodes = &v
		}
	}

	for i := range ratings {
		r := &ratings[i]
		key := normalize.NaturalKey(r.Title, r.MediaType, r.Year)
		g, ok := groups[key]
		if !ok {
			summary.OrphanRatings++
			continue
		}
		ratedAt := r.RatedAt.UTC()
		if g.hasRating {
			newer := ratedAt.After(g.ratedAt)
			tie := ratedAt.Equal(g.ratedAt) && r.Score > *g.row.UserRating
			if !newer && !tie {
				continue
			}
		}
		score := r.Score
		g.row.UserRating = &score
		g.ratedAt = ratedAt
		g.hasRating = true
	}

	rows := make([]models.StagingRow, 0, len(groups))
	for _, g := range groups {
		g.row.EpisodesWatched = len(g.episodes)
		g.row.WatchDurationDays = WatchDurationDays(g.row.FirstWatchedAt, g.row.LastWatchedAt)
		g.row.BingeIndicator = BingeIndicator(g.row.EpisodesWatched, g.row.WatchDurationDays)
		rows = append(rows, g.row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].NaturalKey < rows[j].NaturalKey })

	summary.Titles = len(rows)
	return rows, summary
}

// WatchDurationDays returns the whole days spanned by first..last, rounded
// up and floored at 1.
func WatchDurationDays(first, last time.Time) int {
	span := last.Sub(first)
	if span <= 0 {
		return 1
	}
	days := int(math.Ceil(float64(span) / float64(day)))
	return max(days, 1)
}

// BingeIndicator is the viewing rate in episodes per day.
func BingeIndicator(episodes, durationDays int) float64 {
	if durationDays < 1 {
		durationDays = 1
	}
	return float64(episodes) / float64(durationDays)
}

func normalizeMediaType(mediaType string) string {
	return strings.ToLower(strings.TrimSpace(mediaType))
}
