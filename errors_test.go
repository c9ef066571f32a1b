package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewOAuthError(t *testing.T) {
	err := NewOAuthError(ErrorCodeNotFound, "user not found", http.StatusNotFound)
	if err.Code != ErrorCodeNotFound || err.Status != http.StatusNotFound {
		t.Errorf("NewOAuthError() = %+v", err)
	}
	if got, want := err.Error(), "not_found: user not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *OAuthError
		wantCode   string
		wantStatus int
	}{
		{"invalid request", ErrInvalidRequest("x"), ErrorCodeInvalidRequest, http.StatusBadRequest},
		{"invalid client", ErrInvalidClient("x"), ErrorCodeInvalidClient, http.StatusUnauthorized},
		{"invalid grant", ErrInvalidGrant("x"), ErrorCodeInvalidGrant, http.StatusBadRequest},
		{"unauthorized client", ErrUnauthorizedClient("x"), ErrorCodeUnauthorizedClient, http.StatusBadRequest},
		{"unsupported grant type", ErrUnsupportedGrantType("x"), ErrorCodeUnsupportedGrantType, http.StatusBadRequest},
		{"invalid scope", ErrInvalidScope("x"), ErrorCodeInvalidScope, http.StatusBadRequest},
		{"invalid token", ErrInvalidToken("x"), ErrorCodeInvalidToken, http.StatusUnauthorized},
		{"access denied", ErrAccessDenied("x"), ErrorCodeAccessDenied, http.StatusForbidden},
		{"server error", ErrServerError("x"), ErrorCodeServerError, http.StatusInternalServerError},
		{"rate limited", ErrRateLimitExceeded("x"), ErrorCodeRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
		})
	}
}

func TestOAuthError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("token endpoint: %w", ErrInvalidGrant("code expired"))
	var oe *OAuthError
	if !errors.As(wrapped, &oe) {
		t.Fatal("errors.As() failed to find *OAuthError")
	}
	if oe.Code != ErrorCodeInvalidGrant {
		t.Errorf("Code = %q, want %q", oe.Code, ErrorCodeInvalidGrant)
	}
}
