// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
	"github.com/tomtom215/watchvault/internal/validation"
)

// Reader is the read side of the dimension table. *database.DB implements it.
type Reader interface {
	Ping(ctx context.Context) error
	Counts(ctx context.Context) (versions, current int64, err error)
	CurrentRows(ctx context.Context) ([]models.DimensionRow, error)
	AsOf(ctx context.Context, ts time.Time) ([]models.DimensionRow, error)
	History(ctx context.Context, naturalKey string) ([]models.DimensionRow, error)
	CheckIntegrity(ctx context.Context) ([]models.IntegrityViolation, error)
}

// Handler serves the audit endpoints.
type Handler struct {
	store   Reader
	version string
}

// NewHandler creates a Handler over store; version is reported by /health.
func NewHandler(store Reader, version string) *Handler {
	return &Handler{store: store, version: version}
}

// titlesRequest is the query of GET /api/v1/titles.
type titlesRequest struct {
	AsOf string `validate:"omitempty,max=64"`
}

// historyRequest is the query of GET /api/v1/titles/history. Either Key or
// Title with Type and Year identifies the title.
type historyRequest struct {
	Key   string `validate:"max=600"`
	Title string `validate:"required_without=Key,max=512"`
	Type  string `validate:"omitempty,mediatype"`
	Year  int    `validate:"omitempty,min=1800,max=2200"`
}

// Health reports database reachability. A degraded service answers 503 so
// load balancers take it out of rotation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{Status: "healthy", Version: h.version}

	if err := h.store.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check: database unreachable")
		status.Status = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "success",
			Data:     status,
			Metadata: models.ResponseMetadata{Timestamp: time.Now().UTC()},
		})
		return
	}
	status.DatabaseOK = true

	if _, current, err := h.store.Counts(r.Context()); err == nil {
		status.CurrentTitles = int(current)
	} else {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check: count failed")
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     status,
		Metadata: models.ResponseMetadata{Timestamp: time.Now().UTC()},
	})
}

// Titles returns the current version of every title, or the versions valid
// at ?as_of when given.
func (h *Handler) Titles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := titlesRequest{AsOf: r.URL.Query().Get("as_of")}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	var (
		rows []models.DimensionRow
		err  error
	)
	if req.AsOf == "" {
		rows, err = h.store.CurrentRows(r.Context())
	} else {
		ts, perr := time.Parse(time.RFC3339Nano, req.AsOf)
		if perr != nil {
			respondError(w, http.StatusBadRequest, validation.CodeValidationError, "as_of must be an RFC 3339 timestamp", nil)
			return
		}
		rows, err = h.store.AsOf(r.Context(), ts)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read titles", err)
		return
	}
	if rows == nil {
		rows = []models.DimensionRow{}
	}
	respondSuccess(w, rows, len(rows), start)
}

// TitleHistory returns every version of one title ordered by valid_from.
func (h *Handler) TitleHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	req := historyRequest{
		Key:   q.Get("key"),
		Title: q.Get("title"),
		Type:  q.Get("type"),
	}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			respondError(w, http.StatusBadRequest, validation.CodeValidationError, "year must be an integer", nil)
			return
		}
		req.Year = year
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	key := req.Key
	if key == "" {
		if req.Type == "" || req.Year == 0 {
			respondError(w, http.StatusBadRequest, validation.CodeValidationError, "title requires type and year", nil)
			return
		}
		key = normalize.NaturalKey(req.Title, req.Type, req.Year)
	}

	rows, err := h.store.History(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read title history", err)
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No history for "+sanitizeLogValue(key), nil)
		return
	}
	respondSuccess(w, rows, len(rows), start)
}

// Integrity checks the dimension invariants. Violations are reported in the
// body; the status is 200 either way.
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	violations, err := h.store.CheckIntegrity(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Integrity check failed", err)
		return
	}
	if violations == nil {
		violations = []models.IntegrityViolation{}
	}
	report := models.IntegrityReport{
		OK:         len(violations) == 0,
		CheckedAt:  start.UTC(),
		Violations: violations,
	}
	respondSuccess(w, report, len(violations), start)
}
