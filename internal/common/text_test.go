package common

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("short string changed: %q", got)
	}
	if got := Truncate("hello", 5); got != "hello" {
		t.Fatalf("exact-length string changed: %q", got)
	}
}

func TestTruncateCutsAtByteLimit(t *testing.T) {
	got := Truncate("hello world", 5)
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes per rune
	for max := 1; max < len(s); max++ {
		got := Truncate(s, max)
		if len(got) > max {
			t.Fatalf("max=%d: result %d bytes", max, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("max=%d: invalid UTF-8 %q", max, got)
		}
	}
	if got := Truncate("日本語", 4); got != "日" {
		t.Fatalf("got %q, want single rune", got)
	}
}

func TestTruncateNonPositiveMax(t *testing.T) {
	if got := Truncate("hello", 0); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	if got := Truncate("hello", -1); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
