// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package models

import "time"

// APIResponse represents a standardized API response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": [{"natural_key": "one piece|tv|1999", ...}],
//	  "metadata": {"timestamp": "2026-01-10T12:00:00Z", "query_time_ms": 3, "count": 1}
//	}
type APIResponse struct {
	Status   string           `json:"status"`
	Data     interface{}      `json:"data"`
	Metadata ResponseMetadata `json:"metadata"`
	Error    *APIError        `json:"error,omitempty"`
}

// ResponseMetadata contains response metadata for observability.
type ResponseMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Count       int       `json:"count,omitempty"`
}

// APIError contains error details for failed requests.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	DatabaseOK    bool   `json:"database_ok"`
	CurrentTitles int    `json:"current_titles"`
}

// IntegrityReport is the payload of the integrity endpoint.
type IntegrityReport struct {
	OK         bool                 `json:"ok"`
	CheckedAt  time.Time            `json:"checked_at"`
	Violations []IntegrityViolation `json:"violations"`
}
