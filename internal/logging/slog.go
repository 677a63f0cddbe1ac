// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler is a slog.Handler that writes through zerolog, for libraries
// such as sutureslog that only accept a *slog.Logger. Groups become dotted
// key prefixes: WithGroup("restart") then "service" logs "restart.service".
type SlogHandler struct {
	logger zerolog.Logger
	prefix string
}

// NewSlogHandler wraps the global logger.
func NewSlogHandler() *SlogHandler {
	return NewSlogHandlerWithLogger(Logger())
}

//nolint:gocritic // zerolog.Logger is passed by value throughout zerolog
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// NewSlogLogger returns a *slog.Logger backed by the global zerolog logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return zerologLevel(level) >= h.logger.GetLevel()
}

//nolint:gocritic // slog.Record is passed by value per slog.Handler
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	ev := h.logger.WithLevel(zerologLevel(record.Level))
	record.Attrs(func(a slog.Attr) bool {
		writeAttr(ev, h.prefix, a)
		return true
	})
	ev.Msg(record.Message)
	return nil
}

// WithAttrs bakes attrs into a child zerolog logger so they are encoded once.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	zc := h.logger.With()
	for _, a := range attrs {
		zc = contextAttr(zc, h.prefix, a)
	}
	return &SlogHandler{logger: zc.Logger(), prefix: h.prefix}
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{logger: h.logger, prefix: h.prefix + name + "."}
}

func writeAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(ev, inner, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	ev.Interface(prefix+a.Key, plainValue(v))
}

func contextAttr(zc zerolog.Context, prefix string, a slog.Attr) zerolog.Context {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range v.Group() {
			zc = contextAttr(zc, inner, ga)
		}
		return zc
	}
	if a.Key == "" {
		return zc
	}
	return zc.Interface(prefix+a.Key, plainValue(v))
}

// plainValue unwraps a resolved slog.Value into the Go value zerolog should
// encode. Durations are logged in milliseconds, matching zerolog's Dur.
func plainValue(v slog.Value) interface{} {
	switch v.Kind() {
	case slog.KindDuration:
		return float64(v.Duration()) / float64(zerolog.DurationFieldUnit)
	case slog.KindTime:
		return v.Time().Format(zerolog.TimeFieldFormat)
	default:
		return v.Any()
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	case level >= slog.LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}
