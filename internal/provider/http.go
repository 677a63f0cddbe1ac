// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrorBodySize limits the amount of response body read for error reporting
const maxErrorBodySize = 4 * 1024

// maxResponseSize bounds a successful response body.
const maxResponseSize = 8 * 1024 * 1024

// readBodyForError reads the response body for error reporting (max 4KB)
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return strings.TrimSpace(string(body))
}

// doRequest executes req once and maps failures onto the provider error
// taxonomy. A nil error means a 2xx response whose body the caller must close.
// Retries are not performed here; the orchestrator owns pacing and retry.
func doRequest(ctx context.Context, client *http.Client, provider string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		// Caller cancellation is not a provider failure
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isNetworkError(err) {
			return nil, &TransientError{Provider: provider, Err: err}
		}
		return nil, fmt.Errorf("%s: request failed: %w", provider, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body := readBodyForError(resp.Body)
	statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return nil, &TransientError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Err:        statusErr,
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", provider, ErrNotFound)
	default:
		return nil, fmt.Errorf("%s: request rejected: %w", provider, statusErr)
	}
}

// isNetworkError reports timeouts and connection-level failures.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// parseRetryAfter reads a Retry-After header (RFC 9110): delay-seconds or an HTTP-date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
