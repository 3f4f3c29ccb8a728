package crypto

import (
	"encoding/base64"
	"testing"
)

func TestNewResetToken(t *testing.T) {
	raw, digest, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken() unexpected error: %v", err)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw token is not base64url: %v", err)
	}
	if len(decoded) != randomTokenBytes {
		t.Errorf("raw token decodes to %d bytes, want %d", len(decoded), randomTokenBytes)
	}
	if len(digest) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(digest))
	}
	if digest != HashResetToken(raw) {
		t.Error("digest must equal HashResetToken(raw)")
	}
	if digest == raw {
		t.Error("digest must differ from the raw token")
	}
}

func TestRandomTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := RandomToken()
		if err != nil {
			t.Fatalf("RandomToken() unexpected error: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = true
	}
}

func TestHashResetTokenDeterministic(t *testing.T) {
	if HashResetToken("abc") != HashResetToken("abc") {
		t.Error("HashResetToken must be deterministic")
	}
	if HashResetToken("abc") == HashResetToken("abd") {
		t.Error("HashResetToken must differ for different inputs")
	}
}
