package service

import (
	"sync"

	"github.com/iliyamo/auth-core/internal/utils"
)

// CredentialVerifier checks plaintext passwords against bcrypt hashes and
// produces new hashes.  It never logs or returns plaintext.
type CredentialVerifier struct {
	cost int

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialVerifier returns a verifier hashing at cost.
func NewCredentialVerifier(cost int) *CredentialVerifier {
	return &CredentialVerifier{cost: cost}
}

// Verify reports whether plaintext matches hash.  The comparison is the
// constant-time one inside bcrypt.
func (v *CredentialVerifier) Verify(hash, plaintext string) bool {
	return utils.VerifyPassword(hash, plaintext)
}

// SetPassword hashes plaintext for storage.
func (v *CredentialVerifier) SetPassword(plaintext string) (string, error) {
	return utils.HashPassword(plaintext, v.cost)
}

// VerifyUnknown spends one bcrypt comparison at the configured cost and
// always reports false.  Login calls it for unknown emails so both branches
// take the same time.
func (v *CredentialVerifier) VerifyUnknown(plaintext string) bool {
	v.dummyOnce.Do(func() {
		raw, err := utils.NewOpaqueToken(16)
		if err != nil {
			raw = "unknown-user-placeholder"
		}
		v.dummyHash, _ = utils.HashPassword(raw, v.cost)
	})
	_ = utils.VerifyPassword(v.dummyHash, plaintext)
	return false
}
