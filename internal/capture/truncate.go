package capture

import (
	"crypto/sha256"
	"encoding/hex"
)

// clipped is a payload cut to a byte ceiling. sum is the SHA-256 of the
// original when it was cut.
type clipped struct {
	data      string
	truncated bool
	size      int
	sum       string
}

func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}

func clip(s string, maxBytes int) clipped {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return clipped{data: s, size: len(s)}
	}
	out, truncated, size, sum := truncateBytes([]byte(s), maxBytes)
	return clipped{data: string(out), truncated: truncated, size: size, sum: sum}
}
