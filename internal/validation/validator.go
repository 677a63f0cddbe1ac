// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package validation checks the payloads that cross Watchvault's trust
// boundaries: raw export records, provider responses, CLI flags and API
// query parameters. All callers share one go-playground/validator instance
// so struct metadata is parsed once per type.
//
//	type historyQuery struct {
//	    Key string `validate:"required,max=512"`
//	}
//
//	if verr := validation.ValidateStruct(&q); verr != nil {
//	    return verr.ToAPIError()
//	}
package validation

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MediaTypes lists the media types accepted in raw exports.
var MediaTypes = []string{"tv", "movie", "ova", "ona", "special", "music"}

const maxGenreLength = 64

var (
	shared     *validator.Validate
	sharedOnce sync.Once
)

// GetValidator returns the process-wide validator with the custom rules
// registered. Safe for concurrent use.
func GetValidator() *validator.Validate {
	sharedOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		for tag, fn := range map[string]validator.Func{
			"mediatype": isMediaType,
			"genre":     isGenre,
		} {
			// Only empty tags or nil funcs fail registration.
			_ = v.RegisterValidation(tag, fn)
		}
		shared = v
	})
	return shared
}

func isMediaType(fl validator.FieldLevel) bool {
	return slices.Contains(MediaTypes, strings.ToLower(strings.TrimSpace(fl.Field().String())))
}

// isGenre accepts a non-blank single-line label without JSON punctuation.
func isGenre(fl validator.FieldLevel) bool {
	label := strings.TrimSpace(fl.Field().String())
	switch {
	case label == "":
		return false
	case utf8.RuneCountInString(label) > maxGenreLength:
		return false
	default:
		return !strings.ContainsAny(label, "\n\r\t{}[]")
	}
}

// ValidateStruct validates s and returns nil when every rule passes.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: s was not a struct.
		return &RequestValidationError{errors: []FieldError{{
			field:   "unknown",
			tag:     "unknown",
			message: err.Error(),
		}}}
	}

	out := &RequestValidationError{errors: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.errors = append(out.errors, FieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: describe(fe),
		})
	}
	return out
}
