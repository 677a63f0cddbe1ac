// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// TitleMetadata is the validated subset of an external metadata lookup.
// Raw keeps the provider's original document for audit and later re-parsing.
type TitleMetadata struct {
	ExternalID string          `json:"external_id,omitempty" validate:"max=128"`
	Title      string          `json:"title,omitempty" validate:"max=512"`
	Studio     *string         `json:"studio,omitempty" validate:"omitempty,max=256"`
	Score      *float64        `json:"score,omitempty" validate:"omitempty,gte=0,lte=10"`
	Episodes   *int            `json:"episodes,omitempty" validate:"omitempty,gte=0,lte=100000"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// ClassificationResult is one title's genre set from a classification batch.
type ClassificationResult struct {
	Title  string   `json:"title" validate:"required,max=512"`
	Genres []string `json:"genres" validate:"required,min=1,max=16,dive,genre"`
}

// ClassificationResponse is the structured document the classifier must return.
type ClassificationResponse struct {
	Results []ClassificationResult `json:"results" validate:"dive"`
}

// MetadataCacheEntry is the persisted form of a metadata lookup, keyed by
// normalized title and year.
type MetadataCacheEntry struct {
	Payload   TitleMetadata `json:"payload"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// ClassificationCacheEntry is the persisted genre set for a normalized title.
type ClassificationCacheEntry struct {
	Genres    []string  `json:"genres"`
	FetchedAt time.Time `json:"fetched_at"`
}
