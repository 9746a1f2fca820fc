package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"unicode/utf8"
)

func TestTruncateBytes(t *testing.T) {
	t.Run("no_truncation_when_within_limit", func(t *testing.T) {
		input := []byte("hello world")
		out, truncated, origLen, hash := truncateBytes(input, len(input))

		if truncated {
			t.Fatalf("expected truncated=false, got true")
		}
		if origLen != len(input) {
			t.Fatalf("expected original size %d, got %d", len(input), origLen)
		}
		if hash != "" {
			t.Fatalf("expected empty hash, got %q", hash)
		}
		if string(out) != string(input) {
			t.Fatalf("expected output %q, got %q", string(input), string(out))
		}
	})

	t.Run("truncate_large_slice", func(t *testing.T) {
		input := []byte("hello world")
		maxBytes := 5
		expectedHash := sha256.Sum256(input)
		out, truncated, origLen, hash := truncateBytes(input, maxBytes)

		if !truncated {
			t.Fatalf("expected truncated=true, got false")
		}
		if origLen != len(input) {
			t.Fatalf("expected original size %d, got %d", len(input), origLen)
		}
		if string(out) != "hello" {
			t.Fatalf("expected output %q, got %q", "hello", string(out))
		}
		if hash != hex.EncodeToString(expectedHash[:]) {
			t.Fatalf("unexpected hash %q", hash)
		}
	})
}

func TestPreview(t *testing.T) {
	if got := preview("short", 50); got != "short" {
		t.Fatalf("preview(short) = %q; want unchanged", got)
	}
	if got, want := preview("abcdefgh", 3), "abc..."; got != want {
		t.Fatalf("preview() = %q; want %q", got, want)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"😀😀", 5, "😀..."},
		{"😀😀", 3, "..."},
		{"aé", 2, "a..."},
		{"aéb", 3, "aé..."},
	}
	for _, tt := range tests {
		got := preview(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("preview(%q, %d) = %q; want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("preview(%q, %d) = %q is not valid UTF-8", tt.in, tt.max, got)
		}
	}
}
