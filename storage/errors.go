package storage

import "errors"

// Sentinel errors returned by store implementations. Implementations may wrap
// them with extra context; callers match with errors.Is.
var (
	ErrClientNotFound            = errors.New("client not found")
	ErrUserNotFound              = errors.New("user not found")
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")
	ErrTokenNotFound             = errors.New("token not found")
	ErrRefreshTokenRevoked       = errors.New("refresh token revoked")
	ErrDeviceCodeNotFound        = errors.New("device code not found")
	ErrDeviceCodeNotPending      = errors.New("device code not pending")
	ErrConsentNotFound           = errors.New("consent not found")
)
