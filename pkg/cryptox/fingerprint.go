package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// FingerprintSize is the length of a fingerprint in characters.
const FingerprintSize = 12

// Fingerprint returns a short, deterministic SHA-256 fingerprint of a token.
// It lets logs tell credentials apart without recording the token itself.
// An empty token has an empty fingerprint.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:FingerprintSize]
}
