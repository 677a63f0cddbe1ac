// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ctxField is a context key whose value is also the log field name.
type ctxField string

const (
	correlationField ctxField = "correlation_id" // one per pipeline run
	requestField     ctxField = "request_id"     // one per HTTP request
)

// ctxFields lists what Ctx copies onto the logger, in output order.
var ctxFields = []ctxField{correlationField, requestField}

// GenerateCorrelationID returns a short random ID. Eight hex characters are
// plenty to tell concurrent runs apart in a log stream.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationField, id)
}

// ContextWithNewCorrelationID tags ctx with a fresh correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationField)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestField, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestField)
}

func stringValue(ctx context.Context, key ctxField) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// Ctx returns the global logger carrying whichever IDs ctx holds.
//
//	logging.Ctx(ctx).Info().Int("changed", n).Msg("merge committed")
func Ctx(ctx context.Context) *zerolog.Logger {
	zc := Logger().With()
	for _, f := range ctxFields {
		if v := stringValue(ctx, f); v != "" {
			zc = zc.Str(string(f), v)
		}
	}
	l := zc.Logger()
	return &l
}

// WithComponent returns a child of the global logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
