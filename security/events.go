package security

// Event types written by the Auditor.
const (
	// Token lifecycle
	EventTokenIssued    = "token_issued"
	EventTokenRefreshed = "token_refreshed"
	EventTokenRevoked   = "token_revoked"
	EventTokensDeleted  = "tokens_deleted" //nolint:gosec // event name, not a credential

	// Authorization
	EventAuthorizationCodeIssued        = "authorization_code_issued"
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"
	EventRefreshTokenReuseDetected      = "refresh_token_reuse_detected"
	EventDeviceCodeIssued               = "device_code_issued"
	EventDeviceAuthorized               = "device_authorized"
	EventConsentGranted                 = "consent_granted"
	EventConsentDenied                  = "consent_denied"

	// Sessions
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventLogout         = "logout"

	// Violations
	EventAuthFailure       = "auth_failure"
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventInvalidPKCE       = "invalid_pkce"
	EventInvalidRedirect   = "invalid_redirect"
	EventScopeEscalation   = "scope_escalation_attempt"
)
