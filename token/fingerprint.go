package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

const secretLength = 32 // 256 bits

// Fingerprint returns the deterministic one-way digest of a secret. Stored
// token lookups key on fingerprints so raw secrets are never persisted or
// logged.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewSecret generates a high-entropy random secret from the given source.
// A nil source falls back to crypto/rand.
func NewSecret(random io.Reader) (string, error) {
	if random == nil {
		random = rand.Reader
	}
	bytes := make([]byte, secretLength)
	if _, err := io.ReadFull(random, bytes); err != nil {
		return "", errors.Wrap(err, "[NewSecret] rand.Read")
	}
	return hex.EncodeToString(bytes), nil
}
