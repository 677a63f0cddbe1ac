// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/watchvault/internal/models"
)

// CodeValidationError is the API error code for rejected input.
const CodeValidationError = "VALIDATION_ERROR"

// FieldError is one failed rule on one field.
type FieldError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

func (e *FieldError) Field() string      { return e.field }
func (e *FieldError) Tag() string        { return e.tag }
func (e *FieldError) Param() string      { return e.param }
func (e *FieldError) Value() interface{} { return e.value }
func (e *FieldError) Error() string      { return e.message }

// RequestValidationError collects every FieldError from one ValidateStruct call.
type RequestValidationError struct {
	errors []FieldError
}

// Errors returns the individual failures in field order.
func (ve *RequestValidationError) Errors() []FieldError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(ve.errors))
	for i := range ve.errors {
		parts[i] = ve.errors[i].message
	}
	return strings.Join(parts, "; ")
}

// ToAPIError renders the failures in the API error envelope. A single
// failure keeps its message verbatim; several are prefixed by field name and
// listed under details.fields.
func (ve *RequestValidationError) ToAPIError() *models.APIError {
	apiErr := &models.APIError{Code: CodeValidationError, Message: "Validation failed"}

	switch len(ve.errors) {
	case 0:
	case 1:
		fe := ve.errors[0]
		apiErr.Message = fe.message
		apiErr.Details = map[string]interface{}{
			"field": fe.field,
			"tag":   fe.tag,
			"value": fe.value,
		}
	default:
		fields := make([]map[string]interface{}, len(ve.errors))
		parts := make([]string, len(ve.errors))
		for i, fe := range ve.errors {
			fields[i] = map[string]interface{}{
				"field":   fe.field,
				"tag":     fe.tag,
				"message": fe.message,
			}
			parts[i] = fe.field + ": " + fe.message
		}
		apiErr.Message = strings.Join(parts, "; ")
		apiErr.Details = map[string]interface{}{"fields": fields}
	}
	return apiErr
}

// describe turns a validator failure into a sentence naming the field.
func describe(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return fmt.Sprintf("%s is required when %s is not set", field, param)
	case "mediatype":
		return fmt.Sprintf("%s must be a known media type (%s)", field, strings.Join(MediaTypes, ", "))
	case "genre":
		return field + " must contain non-empty genre labels"
	case "datetime":
		return field + " must be a valid date/time in RFC3339 format"
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
