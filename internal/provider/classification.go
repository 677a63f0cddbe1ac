// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/validation"
)

// ClassificationFetcher assigns genres to a batch of titles. The returned
// map is keyed by title as the provider echoed it and may be partial.
type ClassificationFetcher interface {
	Classify(ctx context.Context, titles []string) (map[string][]string, error)
}

const classificationPrompt = `You classify anime, film and television titles into genres.
Reply with a single JSON object and nothing else, in exactly this shape:
{"results": [{"title": "<title exactly as given>", "genres": ["<genre>", ...]}]}
Use between one and five short lower-case genre labels per title.
Omit any title you do not recognize.`

// ClassificationClient calls a chat-completion style endpoint and parses
// the structured genre document out of the first choice's content.
type ClassificationClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewClassificationClient creates a classification client from configuration.
func NewClassificationClient(cfg *config.ClassificationConfig) *ClassificationClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ClassificationClient{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify sends one batch of titles in one HTTP call.
func (c *ClassificationClient) Classify(ctx context.Context, titles []string) (map[string][]string, error) {
	if len(titles) == 0 {
		return map[string][]string{}, nil
	}

	var userContent strings.Builder
	userContent.WriteString("Titles:\n")
	for _, title := range titles {
		userContent.WriteString("- ")
		userContent.WriteString(title)
		userContent.WriteByte('\n')
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classificationPrompt},
			{Role: "user", Content: userContent.String()},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", ProviderClassification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", ProviderClassification, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := doRequest(ctx, c.client, ProviderClassification, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransientError{Provider: ProviderClassification, Err: fmt.Errorf("read body: %w", err)}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, &MalformedResponseError{Provider: ProviderClassification, Reason: "decode completion", Err: err}
	}
	if len(chat.Choices) == 0 {
		return nil, &MalformedResponseError{Provider: ProviderClassification, Reason: "completion has no choices"}
	}

	return ParseClassification(chat.Choices[0].Message.Content)
}

// ParseClassification extracts and validates the genre document from
// generated text. Markdown code fences around the JSON are tolerated. Any
// decode or validation failure is a *MalformedResponseError for the whole batch.
func ParseClassification(content string) (map[string][]string, error) {
	doc := stripCodeFence(content)
	if doc == "" {
		return nil, &MalformedResponseError{Provider: ProviderClassification, Reason: "empty completion"}
	}

	var parsed models.ClassificationResponse
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, &MalformedResponseError{Provider: ProviderClassification, Reason: "decode genre document", Err: err}
	}
	if verr := validation.ValidateStruct(&parsed); verr != nil {
		return nil, &MalformedResponseError{Provider: ProviderClassification, Reason: "invalid genre document", Err: verr}
	}

	out := make(map[string][]string, len(parsed.Results))
	for _, result := range parsed.Results {
		out[result.Title] = append(out[result.Title], result.Genres...)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json") on the opening fence line
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
