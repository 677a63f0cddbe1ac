// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package normalize canonicalizes titles and genre labels into matching keys.
//
// Title keys are used for staging deduplication, natural keys and both
// enrichment cache namespaces, so two cosmetically different spellings of a
// title must always fold to the same key:
//
//	normalize.Title("Jujutsu Kaisen")     // "jujutsu kaisen"
//	normalize.Title("JUJUTSU   KAISEN!")  // "jujutsu kaisen"
//	normalize.Title("Pokémon: The Movie") // "pokemon the movie"
package normalize

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// KeySeparator joins the components of a natural key.
const KeySeparator = "|"

// Title folds case, strips diacritics, removes punctuation and collapses
// whitespace. It is pure and total: empty input yields an empty key.
func Title(s string) string {
	if s == "" {
		return ""
	}

	// Transformers carry state, so each call builds its own chain.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isDiacritic)), norm.NFC)
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Only invalid UTF-8 can fail here; fold the original instead.
		stripped = s
	}

	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case isApostrophe(r):
			// "Howl's" and "Howls" match
			continue
		case unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsControl(r):
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isDiacritic matches the combining diacritical marks block only, so kana
// voicing marks survive decomposition and recompose unchanged.
func isDiacritic(r rune) bool {
	return r >= 0x0300 && r <= 0x036F
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '‘', '’', 'ʼ', '`', '´':
		return true
	}
	return false
}

// NaturalKey builds the business key of a title: normalized title, lower-case
// media type and release year, joined by KeySeparator.
func NaturalKey(title, mediaType string, year int) string {
	return Title(title) + KeySeparator + strings.ToLower(strings.TrimSpace(mediaType)) + KeySeparator + strconv.Itoa(year)
}

// Genre canonicalizes a genre label: "Sci-Fi" and "sci fi" both become "sci-fi".
func Genre(s string) string {
	return strings.ReplaceAll(Title(s), " ", "-")
}

// Genres canonicalizes a genre list into a sorted set with empty labels dropped.
// It returns nil for an empty result.
func Genres(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, g := range in {
		key := Genre(g)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
