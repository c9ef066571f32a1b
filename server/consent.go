package server

import (
	"context"
	"slices"

	"github.com/giantswarm/oauth-engine/storage"
)

// GrantConsent records that userID approved every scope of client.
func (s *Server) GrantConsent(ctx context.Context, userID string, client *storage.Client, clientIP string) error {
	consent := &storage.Consent{
		UserID:    userID,
		ClientID:  client.ClientID,
		Scopes:    slices.Clone(client.Scopes),
		GrantedAt: s.now(),
	}
	if err := s.store.GrantConsent(ctx, consent); err != nil {
		return s.internalError("grant consent", err)
	}
	s.Auditor.LogConsent(userID, client.ClientID, clientIP, true)
	if m := s.metrics(); m != nil {
		m.RecordConsentDecision(ctx, client.ClientID, true)
	}
	return nil
}

// DenyConsent records a refusal. Nothing is stored.
func (s *Server) DenyConsent(ctx context.Context, userID, clientID, clientIP string) *Error {
	s.Auditor.LogConsent(userID, clientID, clientIP, false)
	if m := s.metrics(); m != nil {
		m.RecordConsentDecision(ctx, clientID, false)
	}
	return ErrAccessDenied("the user denied the request")
}
