package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// generateETag produces a strong ETag from body bytes using SHA-256.
func generateETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// matchETag checks an If-None-Match header value against an ETag. Handles the
// wildcard, weak-prefix comparison, and comma-separated lists.
func matchETag(inm, etag string) bool {
	if strings.TrimSpace(inm) == "*" {
		return true
	}
	normalize := func(s string) string {
		s = strings.TrimSpace(s)
		return strings.TrimPrefix(s, "W/")
	}
	want := normalize(etag)
	for _, candidate := range strings.Split(inm, ",") {
		if normalize(candidate) == want {
			return true
		}
	}
	return false
}
