package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
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
		expectedHash := sha256.Sum256(input)
		out, truncated, origLen, hash := truncateBytes(input, 5)

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

func TestClip(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		c := clip("payload", 0)
		if c.truncated || c.data != "payload" || c.size != 7 {
			t.Fatalf("clip() = %+v; want untouched payload", c)
		}
	})

	t.Run("non_ascii_is_cut_by_bytes", func(t *testing.T) {
		c := clip("😀😀", 5)
		if len(c.data) != 5 {
			t.Fatalf("expected byte length 5, got %d", len(c.data))
		}
		if !c.truncated || c.size != 8 || c.sum == "" {
			t.Fatalf("clip() = %+v; want truncation metadata", c)
		}
	})
}
