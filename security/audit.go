package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor writes security events. User identifiers are hashed before they
// reach the log.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	onEvent func(eventType string)
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// OnEvent registers a callback invoked with the type of every logged event,
// typically a metrics counter.
func (a *Auditor) OnEvent(fn func(eventType string)) {
	a.onEvent = fn
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
	if a.onEvent != nil {
		a.onEvent(event.Type)
	}
}

// LogTokenIssued logs a successful token endpoint response.
func (a *Auditor) LogTokenIssued(userID, clientID, ipAddress, grantType, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      scope,
		},
	})
}

// LogTokenRevoked logs an explicit revocation.
func (a *Auditor) LogTokenRevoked(userID, clientID, ipAddress, tokenType string) {
	a.LogEvent(Event{
		Type:      EventTokenRevoked,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogAuthFailure logs a failed client or user authentication.
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogLogin logs a login attempt.
func (a *Auditor) LogLogin(userID, username, ipAddress string, success bool) {
	eventType := EventLoginSucceeded
	if !success {
		eventType = EventLoginFailed
	}
	a.LogEvent(Event{
		Type:      eventType,
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"username_hash": hashForLogging(username),
		},
	})
}

// LogConsent logs a consent decision.
func (a *Auditor) LogConsent(userID, clientID, ipAddress string, granted bool) {
	eventType := EventConsentGranted
	if !granted {
		eventType = EventConsentDenied
	}
	a.LogEvent(Event{
		Type:      eventType,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
