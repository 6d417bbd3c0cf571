// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides helpers shared by the chatvault packages.
package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("File not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Mode = %o, want 600", info.Mode().Perm())
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", string(content))
	}
}

func TestAtomicWrite_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	if err := AtomicWriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	boom := errors.New("encoder failed")
	err := AtomicWrite(path, 0644, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "original" {
		t.Errorf("target modified: %q", content)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	testCases := []struct {
		input    string
		maxRunes int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語のテキスト", 5, "日本..."},
	}

	for _, tc := range testCases {
		if got := TruncateRunes(tc.input, tc.maxRunes); got != tc.expected {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.input, tc.maxRunes, got, tc.expected)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	testCases := []struct {
		input    string
		maxWidth int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語", 6, "日本語"},
		{"日本語テキスト", 7, "日本..."},
		{"abc", 0, ""},
	}

	for _, tc := range testCases {
		got := TruncateWidth(tc.input, tc.maxWidth)
		if got != tc.expected {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.maxWidth, got, tc.expected)
		}
		if StringWidth(got) > tc.maxWidth {
			t.Errorf("TruncateWidth(%q, %d) is %d columns wide", tc.input, tc.maxWidth, StringWidth(got))
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("日本", 6); StringWidth(got) != 6 {
		t.Errorf("PadRight wide = %q (%d columns)", got, StringWidth(got))
	}
	if got := PadRight("too long for it", 6); StringWidth(got) != 6 {
		t.Errorf("PadRight long = %q", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\n  first \nsecond"); got != "first" {
		t.Errorf("FirstLine = %q", got)
	}
	if got := FirstLine("   "); got != "" {
		t.Errorf("FirstLine blank = %q", got)
	}
}

// =============================================================================
// RECENCY TESTS
// =============================================================================

func TestRecencyBucket(t *testing.T) {
	// Thursday afternoon.
	now := time.Date(2025, 5, 15, 15, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		t    time.Time
		want Bucket
	}{
		{"future", now.Add(time.Hour), BucketToday},
		{"this morning", time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), BucketToday},
		{"yesterday late", time.Date(2025, 5, 14, 23, 59, 0, 0, time.UTC), BucketYesterday},
		{"monday", time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC), BucketThisWeek},
		{"last sunday", time.Date(2025, 5, 11, 9, 0, 0, 0, time.UTC), BucketThisMonth},
		{"first of month", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), BucketThisMonth},
		{"april", time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), BucketLast6Months},
		{"january", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), BucketLast6Months},
		{"november", time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), BucketLastYear},
		{"last summer", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), BucketLastYear},
		{"long ago", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), BucketOlder},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RecencyBucket(tc.t, now); got != tc.want {
				t.Errorf("RecencyBucket(%v) = %q, want %q", tc.t, got, tc.want)
			}
		})
	}
}

func TestRecencyBucket_UsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2025, 5, 15, 8, 0, 0, 0, tokyo)
	// 22:30 UTC on the 14th is 07:30 on the 15th in Tokyo.
	stamp := time.Date(2025, 5, 14, 22, 30, 0, 0, time.UTC)

	if got := RecencyBucket(stamp, now); got != BucketToday {
		t.Errorf("RecencyBucket = %q, want Today", got)
	}
}

func TestBuckets_Order(t *testing.T) {
	b := Buckets()
	if len(b) != 7 || b[0] != BucketToday || b[6] != BucketOlder {
		t.Errorf("Buckets() = %v", b)
	}
}
