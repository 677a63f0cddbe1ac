// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package scd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
)

// fingerprintDoc fixes field order and encoding of the compared fields.
type fingerprintDoc struct {
	UserRating      *float64 `json:"user_rating"`
	EpisodesWatched int      `json:"episodes_watched"`
	TotalEpisodes   *int     `json:"total_episodes"`
	Genres          []string `json:"genres"`
	ExternalScore   *float64 `json:"external_score"`
	Studio          *string  `json:"studio"`
	LastWatchedAt   string   `json:"last_watched_at"`
}

// Fingerprint returns the hex SHA-256 of the row's comparable fields.
// Timestamps are compared in UTC at microsecond precision, the resolution
// the dimension table stores. Encoding fails only for non-finite scores.
func Fingerprint(row *models.StagingRow) (string, error) {
	doc := fingerprintDoc{
		UserRating:      row.UserRating,
		EpisodesWatched: row.EpisodesWatched,
		TotalEpisodes:   row.TotalEpisodes,
		Genres:          normalize.Genres(row.Genres),
		ExternalScore:   row.ExternalScore,
		Studio:          row.Studio,
		LastWatchedAt:   canonicalTime(row.LastWatchedAt),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", row.NaturalKey, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}
