package crypto

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	hashCost = bcrypt.MinCost
	m.Run()
}

func TestHashPassword_Format(t *testing.T) {
	hash, err := HashPassword("kibble-and-treats")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}

	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("HashPassword() = %q, want bcrypt $2a$ prefix", hash)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost() unexpected error: %v", err)
	}
	if cost != hashCost {
		t.Errorf("hash cost = %d, want %d", cost, hashCost)
	}
}

func TestHashPassword_FreshSalt(t *testing.T) {
	first, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}
	second, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}

	if first == second {
		t.Error("two hashes of the same password are identical")
	}
}

func TestHashPassword_Length(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Errorf("HashPassword(%d bytes) unexpected error: %v", MaxPasswordBytes, err)
	}

	_, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1))
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("HashPassword(%d bytes) error = %v, want %v", MaxPasswordBytes+1, err, ErrPasswordTooLong)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}

	tests := []struct {
		name      string
		password  string
		hash      string
		wantMatch bool
		wantErr   bool
	}{
		{name: "correct password", password: "password123", hash: hash, wantMatch: true},
		{name: "wrong password", password: "password124", hash: hash},
		{name: "empty password", password: "", hash: hash},
		{name: "malformed hash", password: "password123", hash: "not-a-bcrypt-hash", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := VerifyPassword(tt.password, tt.hash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if match != tt.wantMatch {
				t.Errorf("VerifyPassword() = %v, want %v", match, tt.wantMatch)
			}
		})
	}
}
