package admission

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey derives the per-key tier identifier from a raw API key.
// Keys are never stored or logged raw; the SHA-256 hex digest is the
// only form the controller ever sees.
func HashAPIKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
