// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package ingest loads raw viewing-history exports.
//
// An export is either a single JSON array of records or JSON lines (one
// record per line, blank lines ignored). The format is detected from the
// first non-whitespace byte. Every record is validated; a file with any
// malformed or invalid record is rejected as a whole and the error lists
// each offending line or array position.
package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/validation"
)

// maxLineBytes bounds one JSON-lines record.
const maxLineBytes = 1 << 20

// maxReportedIssues caps how many issues LoadError.Error prints.
const maxReportedIssues = 10

// Issue is one rejected record. Line is the 1-based line of a JSON-lines
// file or the 1-based position in a JSON array.
type Issue struct {
	Line int
	Err  error
}

// LoadError lists every record of an export that failed to decode or validate.
type LoadError struct {
	Source string
	Issues []Issue
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d invalid records", e.Source, len(e.Issues))
	for i, issue := range e.Issues {
		if i == maxReportedIssues {
			fmt.Fprintf(&b, "; ... %d more", len(e.Issues)-maxReportedIssues)
			break
		}
		fmt.Fprintf(&b, "; record %d: %v", issue.Line, issue.Err)
	}
	return b.String()
}

// LoadEvents reads watch events from path.
func LoadEvents(path string) ([]models.RawEvent, error) {
	return loadFile[models.RawEvent](path)
}

// LoadRatings reads user ratings from path.
func LoadRatings(path string) ([]models.Rating, error) {
	return loadFile[models.Rating](path)
}

// DecodeEvents reads watch events from r; source names r in errors.
func DecodeEvents(r io.Reader, source string) ([]models.RawEvent, error) {
	return decode[models.RawEvent](r, source)
}

// DecodeRatings reads user ratings from r; source names r in errors.
func DecodeRatings(r io.Reader, source string) ([]models.Rating, error) {
	return decode[models.Rating](r, source)
}

func loadFile[T any](path string) ([]T, error) {
	//nolint:gosec // G304: the export path is operator-supplied configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Warn().Err(cerr).Str("path", path).Msg("Failed to close export file")
		}
	}()

	records, err := decode[T](f, path)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("path", path).Int("records", len(records)).Msg("Loaded export")
	return records, nil
}

func decode[T any](r io.Reader, source string) ([]T, error) {
	br := bufio.NewReader(r)
	first, skippedLines, err := firstByte(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	if first == '[' {
		return decodeArray[T](br, source)
	}
	return decodeLines[T](br, source, skippedLines)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// firstByte peeks the first non-whitespace byte without consuming it and
// reports how many complete lines of leading whitespace it skipped. A
// leading byte order mark is discarded.
func firstByte(br *bufio.Reader) (byte, int, error) {
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	lines := 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, lines, err
		}
		switch b {
		case '\n':
			lines++
			continue
		case ' ', '\t', '\r':
			continue
		}
		return b, lines, br.UnreadByte()
	}
}

func decodeArray[T any](r io.Reader, source string) ([]T, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}

	out := make([]T, 0, len(raw))
	var issues []Issue
	for i, msg := range raw {
		rec, err := decodeRecord[T](msg)
		if err != nil {
			issues = append(issues, Issue{Line: i + 1, Err: err})
			continue
		}
		out = append(out, rec)
	}
	if len(issues) > 0 {
		return nil, &LoadError{Source: source, Issues: issues}
	}
	return out, nil
}

func decodeLines[T any](r io.Reader, source string, line int) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []T
	var issues []Issue
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		rec, err := decodeRecord[T](text)
		if err != nil {
			issues = append(issues, Issue{Line: line, Err: err})
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s at line %d: %w", source, line+1, err)
	}
	if len(issues) > 0 {
		return nil, &LoadError{Source: source, Issues: issues}
	}
	return out, nil
}

func decodeRecord[T any](data []byte) (T, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("malformed JSON: %w", err)
	}
	if verr := validation.ValidateStruct(&rec); verr != nil {
		return rec, verr
	}
	return rec, nil
}
