package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/tokens"
)

// IntrospectionResponse is the RFC 7662 response. Only Active is set for
// inactive tokens.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// ClientCredentials identify the caller of introspection and revocation.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	ClientIP     string
}

// Introspect reports whether token is active. The caller must be a
// confidential client.
func (s *Server) Introspect(ctx context.Context, creds ClientCredentials, token string) (*IntrospectionResponse, error) {
	if _, err := s.AuthenticateClient(ctx, creds.ClientID, creds.ClientSecret, creds.ClientIP, true); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrInvalidRequest("token is required")
	}

	inactive := &IntrospectionResponse{Active: false}
	claims, ok := s.verifier.Verify(token)
	if !ok {
		return inactive, nil
	}

	var (
		clientID  string
		subject   string
		scopes    []string
		createdAt int64
		expiresAt int64
		err       error
	)
	switch claims.TokenType() {
	case tokens.AccessToken:
		var rec *storage.AccessToken
		rec, err = s.store.GetAccessToken(ctx, token)
		if err == nil {
			if rec.Revoked || security.IsExpired(rec.ExpiresAt, s.now()) {
				return inactive, nil
			}
			clientID, subject, scopes = rec.ClientID, rec.UserID, rec.Scopes
			createdAt, expiresAt = rec.CreatedAt.Unix(), rec.ExpiresAt.Unix()
		}
	case tokens.RefreshToken:
		var rec *storage.RefreshToken
		rec, err = s.store.GetRefreshToken(ctx, token)
		if err == nil {
			if rec.Revoked || security.IsExpired(rec.ExpiresAt, s.now()) {
				return inactive, nil
			}
			clientID, subject, scopes = rec.ClientID, rec.UserID, rec.Scopes
			createdAt, expiresAt = rec.CreatedAt.Unix(), rec.ExpiresAt.Unix()
		}
	default:
		return inactive, nil
	}
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return inactive, nil
		}
		return nil, s.internalError("introspect token", err)
	}

	if subject == "" {
		subject = claims.Subject()
	}
	return &IntrospectionResponse{
		Active:    true,
		ClientID:  clientID,
		Subject:   subject,
		Scope:     util.JoinScopes(scopes),
		ExpiresAt: expiresAt,
		IssuedAt:  createdAt,
		TokenType: string(claims.TokenType()),
	}, nil
}

// Revoke revokes token when it belongs to the calling client. Unknown and
// foreign tokens are ignored, as RFC 7009 requires.
func (s *Server) Revoke(ctx context.Context, creds ClientCredentials, token string) error {
	client, err := s.AuthenticateClient(ctx, creds.ClientID, creds.ClientSecret, creds.ClientIP, false)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrInvalidRequest("token is required")
	}

	if rec, err := s.store.GetAccessToken(ctx, token); err == nil {
		if rec.ClientID == client.ClientID {
			if err := s.store.RevokeAccessToken(ctx, token); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
				return s.internalError("revoke access token", err)
			}
			s.revoked(ctx, rec.UserID, client.ClientID, creds.ClientIP, tokens.AccessToken)
		}
	} else if !errors.Is(err, storage.ErrTokenNotFound) {
		return s.internalError("get access token", err)
	}

	if rec, err := s.store.GetRefreshToken(ctx, token); err == nil {
		if rec.ClientID == client.ClientID {
			if err := s.store.RevokeRefreshToken(ctx, token); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
				return s.internalError("revoke refresh token", err)
			}
			s.revoked(ctx, rec.UserID, client.ClientID, creds.ClientIP, tokens.RefreshToken)
		}
	} else if !errors.Is(err, storage.ErrTokenNotFound) {
		return s.internalError("get refresh token", err)
	}
	return nil
}

func (s *Server) revoked(ctx context.Context, userID, clientID, clientIP string, typ tokens.TokenType) {
	s.Auditor.LogTokenRevoked(userID, clientID, clientIP, string(typ))
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, clientID)
	}
}
