// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package normalize

import (
	"reflect"
	"testing"
)

func TestTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Jujutsu Kaisen", "jujutsu kaisen"},
		{"shouting and punctuation", "JUJUTSU   KAISEN!", "jujutsu kaisen"},
		{"already normalized", "jujutsu kaisen", "jujutsu kaisen"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
		{"leading and trailing space", "  Frieren  ", "frieren"},
		{"tabs and newlines", "Spy\tx\nFamily", "spy x family"},
		{"diacritics", "Pokémon: The Movie", "pokemon the movie"},
		{"colon subtitle", "Re:Zero - Starting Life", "re zero starting life"},
		{"apostrophe removed", "Howl's Moving Castle", "howls moving castle"},
		{"typographic apostrophe", "Howl’s Moving Castle", "howls moving castle"},
		{"digits kept", "86 EIGHTY-SIX", "86 eighty six"},
		{"symbols", "Fate/stay night [UBW]", "fate stay night ubw"},
		{"cjk untouched", "進撃の巨人", "進撃の巨人"},
		{"kana voicing marks kept", "ジョジョの奇妙な冒険", "ジョジョの奇妙な冒険"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Title(tt.input); got != tt.want {
				t.Errorf("Title(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTitle_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"JUJUTSU   KAISEN!", "Pokémon: The Movie", "Howl's Moving Castle", ""}
	for _, in := range inputs {
		once := Title(in)
		if twice := Title(once); twice != once {
			t.Errorf("Title(Title(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestNaturalKey(t *testing.T) {
	t.Parallel()

	got := NaturalKey("ONE PIECE", "TV", 1999)
	if got != "one piece|tv|1999" {
		t.Errorf("NaturalKey() = %q, want one piece|tv|1999", got)
	}

	// Remakes sharing a title stay distinct
	if NaturalKey("Hunter x Hunter", "tv", 1999) == NaturalKey("Hunter x Hunter", "tv", 2011) {
		t.Error("NaturalKey() should differ by year")
	}
	if NaturalKey("One Piece", "tv", 1999) != NaturalKey("one piece!", " tv ", 1999) {
		t.Error("NaturalKey() should ignore cosmetic title and media type differences")
	}
}

func TestGenre(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"Sci-Fi", "sci-fi"},
		{"sci fi", "sci-fi"},
		{"Slice of Life", "slice-of-life"},
		{"  Action ", "action"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Genre(tt.input); got != tt.want {
			t.Errorf("Genre(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGenres(t *testing.T) {
	t.Parallel()

	got := Genres([]string{"Drama", "action", "ACTION", " ", "Sci Fi", "sci-fi"})
	want := []string{"action", "drama", "sci-fi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Genres() = %v, want %v", got, want)
	}

	if got := Genres(nil); got != nil {
		t.Errorf("Genres(nil) = %v, want nil", got)
	}
	if got := Genres([]string{"", "!!"}); got != nil {
		t.Errorf("Genres(blank labels) = %v, want nil", got)
	}
}
