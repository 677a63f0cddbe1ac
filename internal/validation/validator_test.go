// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

type testRecord struct {
	Title     string   `validate:"required,max=20"`
	MediaType string   `validate:"mediatype"`
	Score     *float64 `validate:"omitempty,gte=0,lte=10"`
	Genres    []string `validate:"dive,genre"`
}

func floatPtr(v float64) *float64 { return &v }

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     testRecord
		wantTags  []string
		wantValid bool
	}{
		{
			name:      "valid record",
			input:     testRecord{Title: "Frieren", MediaType: "TV", Score: floatPtr(9.1), Genres: []string{"fantasy"}},
			wantValid: true,
		},
		{
			name:      "nil score is allowed",
			input:     testRecord{Title: "Frieren", MediaType: "movie"},
			wantValid: true,
		},
		{
			name:     "missing title",
			input:    testRecord{MediaType: "tv"},
			wantTags: []string{"required"},
		},
		{
			name:     "unknown media type",
			input:    testRecord{Title: "Frieren", MediaType: "podcast"},
			wantTags: []string{"mediatype"},
		},
		{
			name:     "score out of range",
			input:    testRecord{Title: "Frieren", MediaType: "tv", Score: floatPtr(11)},
			wantTags: []string{"lte"},
		},
		{
			name:     "blank genre",
			input:    testRecord{Title: "Frieren", MediaType: "tv", Genres: []string{"drama", "  "}},
			wantTags: []string{"genre"},
		},
		{
			name:     "multiple failures",
			input:    testRecord{Title: strings.Repeat("x", 21), MediaType: "radio"},
			wantTags: []string{"max", "mediatype"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantValid {
				if err != nil {
					t.Fatalf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() expected error, got nil")
			}
			if len(err.Errors()) != len(tt.wantTags) {
				t.Fatalf("got %d errors (%v), want %d", len(err.Errors()), err, len(tt.wantTags))
			}
			for i, tag := range tt.wantTags {
				if got := err.Errors()[i].Tag(); got != tag {
					t.Errorf("error[%d].Tag() = %q, want %q", i, got, tag)
				}
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&testRecord{MediaType: "tv"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Message != "Title is required" {
		t.Errorf("Message = %q, want 'Title is required'", apiErr.Message)
	}
	if apiErr.Details["field"] != "Title" {
		t.Errorf("Details[field] = %v, want Title", apiErr.Details["field"])
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&testRecord{MediaType: "radio"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if !strings.Contains(apiErr.Message, "Title: Title is required") {
		t.Errorf("Message = %q, missing Title error", apiErr.Message)
	}
	if !strings.Contains(apiErr.Message, "MediaType: MediaType must be a known media type") {
		t.Errorf("Message = %q, missing MediaType error", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("Details[fields] = %v, want 2 entries", apiErr.Details["fields"])
	}
}

func TestRequestValidationError_EmptyMessage(t *testing.T) {
	ve := &RequestValidationError{}
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q, want 'validation failed'", ve.Error())
	}
	if ve.ToAPIError().Message != "Validation failed" {
		t.Errorf("ToAPIError().Message = %q", ve.ToAPIError().Message)
	}
}
