// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package main

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 32, "short"},
		{"exactly-eight", 13, "exactly-eight"},
		{"a very long movie title indeed!!", 10, "a very ..."},
		{"Cléo de 5 à 7 (version restaurée)", 12, "Cléo de 5..."},
		{"千と千尋の神隠し、スタジオジブリ制作", 8, "千と千尋の..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
