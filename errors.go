package oauth

import (
	"github.com/giantswarm/oauth-engine/server"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient        = server.ErrorCodeInvalidClient
	ErrorCodeInvalidGrant         = server.ErrorCodeInvalidGrant
	ErrorCodeUnauthorizedClient   = server.ErrorCodeUnauthorizedClient
	ErrorCodeUnsupportedGrantType = server.ErrorCodeUnsupportedGrantType
	ErrorCodeInvalidScope         = server.ErrorCodeInvalidScope
	ErrorCodeInvalidToken         = server.ErrorCodeInvalidToken
	ErrorCodeAccessDenied         = server.ErrorCodeAccessDenied
	ErrorCodeAuthorizationPending = server.ErrorCodeAuthorizationPending
	ErrorCodeExpiredToken         = server.ErrorCodeExpiredToken
	ErrorCodeServerError          = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded    = server.ErrorCodeRateLimitExceeded

	// ErrorCodeNotFound is answered by userinfo when the token's subject
	// no longer exists.
	ErrorCodeNotFound = "not_found"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError = server.Error

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return server.NewError(code, description, status)
}

// Common OAuth errors, shared with the engine.
var (
	ErrInvalidRequest       = server.ErrInvalidRequest
	ErrInvalidClient        = server.ErrInvalidClient
	ErrInvalidGrant         = server.ErrInvalidGrant
	ErrUnauthorizedClient   = server.ErrUnauthorizedClient
	ErrUnsupportedGrantType = server.ErrUnsupportedGrantType
	ErrInvalidScope         = server.ErrInvalidScope
	ErrInvalidToken         = server.ErrInvalidToken
	ErrAccessDenied         = server.ErrAccessDenied
	ErrServerError          = server.ErrServerError
	ErrRateLimitExceeded    = server.ErrRateLimitExceeded
)
