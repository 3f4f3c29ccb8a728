package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
		code   string
	}{
		{KindValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{KindConflict, http.StatusConflict, "CONFLICT"},
		{KindInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{KindUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{KindForbidden, http.StatusForbidden, "FORBIDDEN"},
		{KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{KindInvalidOrExpired, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN"},
		{KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := tt.kind.Status(); got != tt.status {
				t.Errorf("Status() = %d, want %d", got, tt.status)
			}
			if got := tt.kind.Code(); got != tt.code {
				t.Errorf("Code() = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	conflict := New(KindConflict, "email already registered")

	if got := KindOf(conflict); got != KindConflict {
		t.Errorf("KindOf(conflict) = %v, want %v", got, KindConflict)
	}

	wrapped := fmt.Errorf("register: %w", conflict)
	if got := KindOf(wrapped); got != KindConflict {
		t.Errorf("KindOf(wrapped) = %v, want %v", got, KindConflict)
	}
	if !errors.Is(wrapped, conflict) {
		t.Error("errors.Is should find the sentinel through fmt wrapping")
	}

	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindInternal)
	}
	if got := KindOf(nil); got != KindInternal {
		t.Errorf("KindOf(nil) = %v, want %v", got, KindInternal)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("smtp: connection refused")
	err := Wrap(KindInternal, "could not send email", cause)

	if !errors.Is(err, cause) {
		t.Error("Wrap should expose the cause to errors.Is")
	}
	if err.Error() != "could not send email: smtp: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestMessageOfHidesInternalDetails(t *testing.T) {
	if got := MessageOf(Wrap(KindInternal, "db exploded", errors.New("conn reset"))); got != "internal server error" {
		t.Errorf("MessageOf(internal) = %q", got)
	}
	if got := MessageOf(errors.New("raw")); got != "internal server error" {
		t.Errorf("MessageOf(raw) = %q", got)
	}
	if got := MessageOf(New(KindNotFound, "user not found")); got != "user not found" {
		t.Errorf("MessageOf(not found) = %q", got)
	}
}
