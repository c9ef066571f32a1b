package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/tokens"
)

// TokenTypeBearer is the token_type of every token response.
const TokenTypeBearer = "bearer"

// TokenRequest carries the form of a token endpoint request. ClientID and
// ClientSecret come from HTTP Basic authentication or the form body.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	DeviceCode   string
	Scope        string

	ClientID     string
	ClientSecret string

	// Issuer is the iss claim of issued tokens.
	Issuer string

	// ClientIP is used for audit logging only.
	ClientIP string
}

// TokenResponse is the RFC 6749 section 5.1 success response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Token serves the token endpoint for every supported grant.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "oauth.token")
	resp, err := s.token(ctx, req)
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	if s.Instrumentation != nil && s.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, req.ClientIP)
	}
	finishSpan(span, err)
	if err == nil {
		if m := s.metrics(); m != nil {
			m.RecordTokenIssued(ctx, req.ClientID, req.GrantType)
		}
	}
	return resp, err
}

func (s *Server) token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case "":
		return nil, ErrInvalidRequest("grant_type is required")
	case storage.GrantTypeClientCredentials:
		return s.clientCredentialsGrant(ctx, req)
	case storage.GrantTypeAuthorizationCode:
		return s.authorizationCodeGrant(ctx, req)
	case storage.GrantTypeRefreshToken:
		return s.refreshTokenGrant(ctx, req)
	case storage.GrantTypeDeviceCode:
		return s.deviceCodeGrant(ctx, req)
	default:
		return nil, ErrUnsupportedGrantType("unsupported grant_type")
	}
}

// AuthenticateClient resolves the client and checks its secret. Public
// clients authenticate with their ID alone unless requireConfidential is set.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, clientIP string, requireConfidential bool) (*storage.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClient("client authentication required")
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.clientAuthFailed(ctx, clientID, clientIP, "unknown client")
			return nil, ErrInvalidClient("client authentication failed")
		}
		return nil, s.internalError("get client", err)
	}

	if client.IsPublic() {
		if requireConfidential {
			s.clientAuthFailed(ctx, clientID, clientIP, "public client on confidential endpoint")
			return nil, ErrInvalidClient("client authentication failed")
		}
		return client, nil
	}

	if clientSecret == "" || !security.VerifySecret(client.ClientSecretHash, clientSecret) {
		s.clientAuthFailed(ctx, clientID, clientIP, "invalid client secret")
		return nil, ErrInvalidClient("client authentication failed")
	}
	return client, nil
}

func (s *Server) clientAuthFailed(ctx context.Context, clientID, clientIP, reason string) {
	s.Auditor.LogAuthFailure("", clientID, clientIP, reason)
	if m := s.metrics(); m != nil {
		m.RecordClientAuthFailed(ctx, clientID)
	}
}

func (s *Server) clientCredentialsGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.ClientIP, true)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(storage.GrantTypeClientCredentials) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the client_credentials grant")
	}
	scopes, err := resolveScopes(req.Scope, client)
	if err != nil {
		return nil, err
	}

	access, err := s.signAccessToken(ctx, req.Issuer, client.ClientID, client, nil, scopes)
	if err != nil {
		return nil, err
	}

	s.Auditor.LogTokenIssued("", client.ClientID, req.ClientIP, req.GrantType, util.JoinScopes(scopes))
	return &TokenResponse{
		AccessToken: access.Value,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(ttlSeconds(client.AccessTokenTTL, fallbackAccessTokenTTL).Seconds()),
		Scope:       util.JoinScopes(scopes),
	}, nil
}

func (s *Server) authorizationCodeGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.ClientIP, false)
	if err != nil {
		return nil, err
	}
	if client.IsPublic() && req.CodeVerifier == "" && !s.Config.AllowPublicClientsWithoutPKCE {
		return nil, ErrInvalidRequest("code_verifier is required for public clients")
	}
	if !client.AllowsGrant(storage.GrantTypeAuthorizationCode) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the authorization code grant")
	}

	code, err := s.store.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			return nil, ErrInvalidGrant("invalid authorization code")
		}
		return nil, s.internalError("get authorization code", err)
	}
	if code.ClientID != client.ClientID {
		s.Auditor.LogAuthFailure(code.UserID, client.ClientID, req.ClientIP, "authorization code issued to another client")
		return nil, ErrInvalidGrant("invalid authorization code")
	}
	if code.Consumed {
		s.codeReuseDetected(ctx, code, req.ClientIP)
		return nil, ErrInvalidGrant("authorization code already used")
	}
	if security.IsExpired(code.ExpiresAt, s.now()) {
		return nil, ErrInvalidGrant("authorization code expired")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	switch {
	case code.CodeChallenge != "":
		if err := validatePKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier); err != nil {
			s.Logger.Debug("PKCE validation failed", "client_id", client.ClientID, "error", err)
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventInvalidPKCE,
				UserID:    code.UserID,
				ClientID:  client.ClientID,
				IPAddress: req.ClientIP,
			})
			if m := s.metrics(); m != nil {
				m.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
			}
			return nil, ErrInvalidGrant("PKCE verification failed")
		}
	case client.IsPublic() && !s.Config.AllowPublicClientsWithoutPKCE:
		return nil, ErrInvalidGrant("authorization code was issued without PKCE")
	}

	ok, err := s.store.ConsumeAuthorizationCode(ctx, code.Code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			return nil, ErrInvalidGrant("invalid authorization code")
		}
		return nil, s.internalError("consume authorization code", err)
	}
	if !ok {
		s.codeReuseDetected(ctx, code, req.ClientIP)
		return nil, ErrInvalidGrant("authorization code already used")
	}

	user, err := s.ResolveUser(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidGrant("resource owner no longer exists")
		}
		return nil, s.internalError("get user", err)
	}

	resp, err := s.issueUserTokens(ctx, req.Issuer, client, user, code.Scopes, code.Scopes, nil)
	if err != nil {
		return nil, err
	}
	s.Auditor.LogTokenIssued(user.ID, client.ClientID, req.ClientIP, req.GrantType, resp.Scope)
	return resp, nil
}

func (s *Server) codeReuseDetected(ctx context.Context, code *storage.AuthorizationCode, clientIP string) {
	s.Logger.Warn("Authorization code reuse detected",
		"client_id", code.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, 8))
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventAuthorizationCodeReuseDetected,
		UserID:    code.UserID,
		ClientID:  code.ClientID,
		IPAddress: clientIP,
	})
	if m := s.metrics(); m != nil {
		m.RecordCodeReuseDetected(ctx)
	}
}

func (s *Server) refreshTokenGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.ClientIP, false)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(storage.GrantTypeRefreshToken) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the refresh_token grant")
	}

	claims, ok := s.verifier.Verify(req.RefreshToken)
	if !ok || claims.TokenType() != tokens.RefreshToken {
		return nil, ErrInvalidGrant("invalid refresh token")
	}

	stored, err := s.store.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, ErrInvalidGrant("invalid refresh token")
		}
		return nil, s.internalError("get refresh token", err)
	}
	if stored.ClientID != client.ClientID {
		s.Auditor.LogAuthFailure(stored.UserID, client.ClientID, req.ClientIP, "refresh token issued to another client")
		return nil, ErrInvalidGrant("invalid refresh token")
	}
	if stored.Revoked {
		if stored.RotatedTo != "" {
			s.refreshReuseDetected(ctx, stored, req.ClientIP)
		}
		return nil, ErrInvalidGrant("refresh token revoked")
	}
	if security.IsExpired(stored.ExpiresAt, s.now()) {
		return nil, ErrInvalidGrant("refresh token expired")
	}

	scopes := stored.Scopes
	if requested := util.ParseScopes(req.Scope); len(requested) > 0 {
		if !util.ScopesSubset(requested, stored.Scopes) {
			return nil, ErrInvalidScope("requested scope exceeds the original grant")
		}
		scopes = requested
	}

	user, err := s.ResolveUser(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidGrant("resource owner no longer exists")
		}
		return nil, s.internalError("get user", err)
	}

	resp, err := s.issueUserTokens(ctx, req.Issuer, client, user, scopes, stored.Scopes, stored)
	if err != nil {
		return nil, err
	}
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventTokenRefreshed,
		UserID:    user.ID,
		ClientID:  client.ClientID,
		IPAddress: req.ClientIP,
	})
	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, client.ClientID)
	}
	return resp, nil
}

func (s *Server) refreshReuseDetected(ctx context.Context, stored *storage.RefreshToken, clientIP string) {
	s.Logger.Warn("Rotated refresh token presented again",
		"client_id", stored.ClientID,
		"token_id", stored.ID,
		"rotated_to", stored.RotatedTo)
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventRefreshTokenReuseDetected,
		UserID:    stored.UserID,
		ClientID:  stored.ClientID,
		IPAddress: clientIP,
	})
	if m := s.metrics(); m != nil {
		m.RecordRefreshTokenReuseDetected(ctx)
	}
}

// issueUserTokens mints the token set of a user grant. scopes go into the
// access and ID tokens; the refresh token always carries grantScopes so a
// narrowed refresh never shrinks the grant. When previous is set the new
// refresh token replaces it atomically before anything else is stored, so a
// lost rotation race leaves no tokens behind.
func (s *Server) issueUserTokens(ctx context.Context, issuer string, client *storage.Client, user *storage.User, scopes, grantScopes []string, previous *storage.RefreshToken) (*TokenResponse, error) {
	resp := &TokenResponse{
		TokenType: TokenTypeBearer,
		ExpiresIn: int64(ttlSeconds(client.AccessTokenTTL, fallbackAccessTokenTTL).Seconds()),
		Scope:     util.JoinScopes(scopes),
	}

	if client.AllowsGrant(storage.GrantTypeRefreshToken) {
		refresh, err := s.issuer.Sign(tokens.IssueParams{
			Issuer:   issuer,
			Subject:  user.ID,
			Audience: client.ClientID,
			Scopes:   grantScopes,
			TTL:      ttlSeconds(client.RefreshTokenTTL, fallbackRefreshTokenTTL),
			Type:     tokens.RefreshToken,
			Client:   client,
			User:     user,
		})
		if err != nil {
			s.Logger.Error("Failed to sign refresh token", "error", err)
			return nil, ErrServerError("failed to issue token")
		}
		record := &storage.RefreshToken{
			ID:        refresh.ID,
			Token:     refresh.Value,
			ClientID:  client.ClientID,
			UserID:    user.ID,
			Scopes:    grantScopes,
			ExpiresAt: refresh.ExpiresAt,
			CreatedAt: refresh.IssuedAt,
		}
		if previous != nil {
			err = s.store.RotateRefreshToken(ctx, previous.Token, record)
			switch {
			case errors.Is(err, storage.ErrRefreshTokenRevoked), errors.Is(err, storage.ErrTokenNotFound):
				return nil, ErrInvalidGrant("refresh token revoked")
			case err != nil:
				return nil, s.internalError("rotate refresh token", err)
			}
		} else if err := s.store.SaveRefreshToken(ctx, record); err != nil {
			return nil, s.internalError("save refresh token", err)
		}
		resp.RefreshToken = refresh.Value
	}

	access, err := s.signAccessToken(ctx, issuer, user.ID, client, user, scopes)
	if err != nil {
		return nil, err
	}
	resp.AccessToken = access.Value

	if util.HasScope(scopes, "openid") {
		idToken, err := s.issuer.Issue(tokens.IssueParams{
			Issuer:   issuer,
			Subject:  user.ID,
			Audience: client.ClientID,
			Scopes:   scopes,
			TTL:      ttlSeconds(client.AccessTokenTTL, fallbackAccessTokenTTL),
			Type:     tokens.IDToken,
			Client:   client,
			User:     user,
		})
		if err != nil {
			s.Logger.Error("Failed to sign ID token", "error", err)
			return nil, ErrServerError("failed to issue token")
		}
		resp.IDToken = idToken
	}
	return resp, nil
}

// signAccessToken mints and stores an access token. user is nil for
// client_credentials.
func (s *Server) signAccessToken(ctx context.Context, issuer, subject string, client *storage.Client, user *storage.User, scopes []string) (*tokens.Signed, error) {
	access, err := s.issuer.Sign(tokens.IssueParams{
		Issuer:   issuer,
		Subject:  subject,
		Audience: client.ClientID,
		Scopes:   scopes,
		TTL:      ttlSeconds(client.AccessTokenTTL, fallbackAccessTokenTTL),
		Type:     tokens.AccessToken,
		Client:   client,
		User:     user,
	})
	if err != nil {
		s.Logger.Error("Failed to sign access token", "error", err)
		return nil, ErrServerError("failed to issue token")
	}

	record := &storage.AccessToken{
		ID:        access.ID,
		Token:     access.Value,
		ClientID:  client.ClientID,
		Scopes:    scopes,
		ExpiresAt: access.ExpiresAt,
		CreatedAt: access.IssuedAt,
	}
	if user != nil {
		record.UserID = user.ID
	}
	if err := s.store.SaveAccessToken(ctx, record); err != nil {
		return nil, s.internalError("save access token", err)
	}
	return access, nil
}
