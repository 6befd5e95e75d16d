package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for stored token digests
	"encoding/hex"  // hex encoding of random bytes and digests
)

// Opaque token sizes in bytes.  Hex encoding doubles the length.
const (
	RefreshTokenBytes = 48 // 96 hex chars
	ResetTokenBytes   = 32 // 64 hex chars
)

// NewOpaqueToken returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  Refresh and password reset tokens
// are both built with it.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.  Only
// this digest is stored, so a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
