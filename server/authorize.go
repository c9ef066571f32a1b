package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

// ResponseTypeCode is the only supported response_type.
const ResponseTypeCode = "code"

// AuthorizeRequest carries the query of an authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// Origin is the scheme and host the request was served on
	// (e.g. "https://auth.example.com"). It is matched against the
	// redirect URI of the default client.
	Origin string
}

// Authorization is a validated authorization request.
type Authorization struct {
	Client              *storage.Client
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorizeRequest checks an authorization request before any
// user interaction. Every failure is an *Error meant to be rendered to the
// user agent, never redirected to the client.
func (s *Server) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*Authorization, error) {
	ctx, span := s.startSpan(ctx, "oauth.authorize.validate")
	a, err := s.validateAuthorizeRequest(ctx, req)
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	finishSpan(span, err)
	return a, err
}

func (s *Server) validateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*Authorization, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}
	if req.ResponseType != ResponseTypeCode {
		return nil, ErrInvalidRequest("response_type must be 'code'")
	}

	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(storage.GrantTypeAuthorizationCode) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the authorization code grant")
	}

	if err := validateRedirectURI(client, req.RedirectURI, req.Origin); err != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventInvalidRedirect,
			ClientID: client.ClientID,
			Details:  map[string]any{"redirect_uri": util.SafeTruncate(req.RedirectURI, 128)},
		})
		return nil, ErrInvalidRequest(err.Error())
	}

	scopes, err := resolveScopes(req.Scope, client)
	if err != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventScopeEscalation,
			ClientID: client.ClientID,
			Details:  map[string]any{"requested": util.SafeTruncate(req.Scope, 256)},
		})
		return nil, err
	}

	method, err := s.normalizePKCEMethod(req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}
	if req.CodeChallenge == "" && client.IsPublic() && !s.Config.AllowPublicClientsWithoutPKCE {
		return nil, ErrInvalidRequest("code_challenge is required for public clients")
	}

	return &Authorization{
		Client:              client,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	}, nil
}

// IssueAuthorizationCode stores a new single-use code for a validated
// request and the authenticated user.
func (s *Server) IssueAuthorizationCode(ctx context.Context, a *Authorization, userID string) (*storage.AuthorizationCode, error) {
	now := s.now()
	code := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            a.Client.ClientID,
		UserID:              userID,
		RedirectURI:         a.RedirectURI,
		Scopes:              a.Scopes,
		CodeChallenge:       a.CodeChallenge,
		CodeChallengeMethod: a.CodeChallengeMethod,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
		CreatedAt:           now,
	}
	if err := s.store.SaveAuthorizationCode(ctx, code); err != nil {
		return nil, s.internalError("save authorization code", err)
	}

	s.Logger.Debug("Issued authorization code",
		"client_id", code.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, 8))
	s.Auditor.LogEvent(security.Event{
		Type:     security.EventAuthorizationCodeIssued,
		UserID:   userID,
		ClientID: code.ClientID,
		Details:  map[string]any{"scope": util.JoinScopes(code.Scopes)},
	})
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, code.ClientID)
	}
	return code, nil
}

// ConsentNeeded reports whether userID must approve client before a code is
// issued for scopes.
func (s *Server) ConsentNeeded(ctx context.Context, userID string, client *storage.Client, scopes []string) (bool, error) {
	if !client.ConsentRequired {
		return false, nil
	}
	consent, err := s.store.GetConsent(ctx, userID, client.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrConsentNotFound) {
			return true, nil
		}
		return false, s.internalError("get consent", err)
	}
	return !util.ScopesSubset(scopes, consent.Scopes), nil
}

// CodeRedirectURL appends code and state to redirectURI, preserving any
// query it already carries.
func CodeRedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect_uri: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
