package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/tokens"
)

// ErrUserGone is returned by UserInfo when the token is valid but its
// subject no longer exists.
var ErrUserGone = errors.New("user not found")

// UserInfo is the OIDC userinfo response.
type UserInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// UserInfo returns the claims of the user behind a bearer access token.
func (s *Server) UserInfo(ctx context.Context, bearer string) (*UserInfo, error) {
	if bearer == "" {
		return nil, ErrInvalidToken("missing bearer token")
	}
	claims, ok := s.verifier.Verify(bearer)
	if !ok || claims.TokenType() != tokens.AccessToken {
		return nil, ErrInvalidToken("invalid access token")
	}

	stored, err := s.store.GetAccessToken(ctx, bearer)
	switch {
	case errors.Is(err, storage.ErrTokenNotFound):
		return nil, ErrInvalidToken("invalid access token")
	case err != nil:
		return nil, s.internalError("get access token", err)
	case stored.Revoked:
		return nil, ErrInvalidToken("access token revoked")
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject())
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserGone
		}
		return nil, s.internalError("get user", err)
	}

	info := &UserInfo{Subject: user.ID}
	scopes := claims.Scopes()
	if util.HasScope(scopes, "openid") {
		if util.HasScope(scopes, "email") {
			info.Email = user.Email
		}
		if util.HasScope(scopes, "profile") {
			info.Name = user.DisplayName()
			info.PreferredUsername = user.Username
		}
	}
	return info, nil
}
