package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const randomTokenBytes = 32

// RandomToken returns 32 bytes from crypto/rand encoded as unpadded base64url.
func RandomToken() (string, error) {
	raw := make([]byte, randomTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewResetToken returns a raw password-reset token for delivery to the user
// and the digest that is stored in its place.
func NewResetToken() (raw string, digest string, err error) {
	raw, err = RandomToken()
	if err != nil {
		return "", "", err
	}
	return raw, HashResetToken(raw), nil
}

// HashResetToken returns the hex-encoded SHA-256 digest of a raw reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
