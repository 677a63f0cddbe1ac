// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
	"github.com/tomtom215/watchvault/internal/validation"
)

// Provider names, used in errors, breaker names and metric labels.
const (
	ProviderMetadata       = "metadata"
	ProviderClassification = "classification"
)

// MetadataFetcher looks up external metadata for one title.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, normalizedTitle string, year int) (*models.TitleMetadata, error)
}

// MetadataClient queries a JSON search endpoint:
//
//	GET {url}/search?query=<title>&year=<year>
//	Authorization: Bearer <api key>
//
//	{"results": [{"id": "21", "title": "One Piece", "year": 1999,
//	              "studio": "Toei Animation", "score": 8.7, "episodes": 1100}]}
//
// It makes exactly one HTTP call per FetchMetadata; pacing and retry belong
// to the caller.
type MetadataClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewMetadataClient creates a metadata client from configuration.
func NewMetadataClient(cfg *config.MetadataConfig) *MetadataClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MetadataClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// searchEnvelope is the top-level search response.
type searchEnvelope struct {
	Results []json.RawMessage `json:"results"`
}

// searchResult holds the recognized fields of one search hit.
type searchResult struct {
	ID       json.RawMessage `json:"id"`
	Title    string          `json:"title"`
	Year     int             `json:"year"`
	Studio   *string         `json:"studio"`
	Score    *float64        `json:"score"`
	Episodes *int            `json:"episodes"`
}

// FetchMetadata returns the best search hit for the title and year.
// An empty result set is ErrNotFound; an undecodable or invalid hit is a
// *MalformedResponseError.
func (c *MetadataClient) FetchMetadata(ctx context.Context, normalizedTitle string, year int) (*models.TitleMetadata, error) {
	params := url.Values{}
	params.Set("query", normalizedTitle)
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}
	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", ProviderMetadata, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := doRequest(ctx, c.client, ProviderMetadata, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransientError{Provider: ProviderMetadata, Err: fmt.Errorf("read body: %w", err)}
	}

	return parseMetadata(body, normalizedTitle, year)
}

// parseMetadata picks the best hit out of a search response body.
func parseMetadata(body []byte, normalizedTitle string, year int) (*models.TitleMetadata, error) {
	var envelope searchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &MalformedResponseError{Provider: ProviderMetadata, Reason: "decode search response", Err: err}
	}
	if len(envelope.Results) == 0 {
		return nil, fmt.Errorf("%s: %w", ProviderMetadata, ErrNotFound)
	}

	hits := make([]searchResult, 0, len(envelope.Results))
	for i, raw := range envelope.Results {
		var hit searchResult
		if err := json.Unmarshal(raw, &hit); err != nil {
			return nil, &MalformedResponseError{Provider: ProviderMetadata, Reason: fmt.Sprintf("decode result %d", i), Err: err}
		}
		hits = append(hits, hit)
	}

	best := bestMatch(hits, normalizedTitle, year)
	hit := hits[best]

	meta := &models.TitleMetadata{
		ExternalID: rawID(hit.ID),
		Title:      hit.Title,
		Studio:     hit.Studio,
		Score:      hit.Score,
		Episodes:   hit.Episodes,
		Raw:        append(json.RawMessage(nil), envelope.Results[best]...),
	}
	if verr := validation.ValidateStruct(meta); verr != nil {
		return nil, &MalformedResponseError{Provider: ProviderMetadata, Reason: "invalid result", Err: verr}
	}
	return meta, nil
}

// bestMatch prefers an exact title and year match, then a year match, then
// the provider's own ranking.
func bestMatch(hits []searchResult, normalizedTitle string, year int) int {
	yearMatch := -1
	for i := range hits {
		sameYear := year == 0 || hits[i].Year == year
		if sameYear && normalize.Title(hits[i].Title) == normalizedTitle {
			return i
		}
		if sameYear && yearMatch < 0 {
			yearMatch = i
		}
	}
	if yearMatch >= 0 {
		return yearMatch
	}
	return 0
}

// rawID renders a JSON string or number id as plain text.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
