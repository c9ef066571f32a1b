package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

// SaveAccessToken stores an access token under the hash of its value.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, done := s.op(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	payload := *token
	payload.Token = ""

	key := s.accessKey(token.Token)
	if err := s.saveRecord(ctx, key, &payload, token.ExpiresAt, "revoked", boolField(token.Revoked)); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	s.index(ctx, token.UserID, indexAccess, key)
	return nil
}

// GetAccessToken returns the stored record for a token value.
func (s *Store) GetAccessToken(ctx context.Context, token string) (_ *storage.AccessToken, err error) {
	ctx, done := s.op(ctx, "get_access_token")
	defer func() { done(err) }()

	var t storage.AccessToken
	fields, found, err := s.loadRecord(ctx, s.accessKey(token), &t)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if !found {
		return nil, storage.ErrTokenNotFound
	}
	t.Token = token
	t.Revoked = fields["revoked"] == "1"
	return &t, nil
}

// RevokeAccessToken marks an access token revoked.
func (s *Store) RevokeAccessToken(ctx context.Context, token string) (err error) {
	ctx, done := s.op(ctx, "revoke_access_token")
	defer func() { done(err) }()

	return s.revoke(ctx, s.accessKey(token))
}

// SaveRefreshToken stores a refresh token under the hash of its value.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, done := s.op(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	key := s.refreshKey(token.Token)
	if err := s.saveRecord(ctx, key, refreshPayload(token), token.ExpiresAt, refreshState(token)...); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	s.index(ctx, token.UserID, indexRefresh, key)
	return nil
}

func refreshPayload(token *storage.RefreshToken) *storage.RefreshToken {
	payload := *token
	payload.Token = ""
	return &payload
}

func refreshState(token *storage.RefreshToken) []string {
	return []string{"revoked", boolField(token.Revoked), "rotated_to", token.RotatedTo}
}

// GetRefreshToken returns the stored record for a token value.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (_ *storage.RefreshToken, err error) {
	ctx, done := s.op(ctx, "get_refresh_token")
	defer func() { done(err) }()

	var t storage.RefreshToken
	fields, found, err := s.loadRecord(ctx, s.refreshKey(token), &t)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if !found {
		return nil, storage.ErrTokenNotFound
	}
	t.Token = token
	t.Revoked = fields["revoked"] == "1"
	t.RotatedTo = fields["rotated_to"]
	return &t, nil
}

// RevokeRefreshToken marks a refresh token revoked.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) (err error) {
	ctx, done := s.op(ctx, "revoke_refresh_token")
	defer func() { done(err) }()

	return s.revoke(ctx, s.refreshKey(token))
}

func (s *Store) revoke(ctx context.Context, key string) error {
	result, err := s.runScript(ctx, luaRevoke, []string{key}, "1")
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if result == resultNotFound {
		return storage.ErrTokenNotFound
	}
	return nil
}

// RotateRefreshToken revokes oldToken and stores next in one Lua script.
func (s *Store) RotateRefreshToken(ctx context.Context, oldToken string, next *storage.RefreshToken) (err error) {
	ctx, done := s.op(ctx, "rotate_refresh_token")
	defer func() { done(err) }()

	if next == nil || next.Token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	nextKey := s.refreshKey(next.Token)
	fields, err := s.recordArgs(nextKey, refreshPayload(next), next.ExpiresAt, refreshState(next)...)
	if err != nil {
		return err
	}
	args := append([]string{next.ID, ttlArg(s.ttlFor(next.ExpiresAt))}, fields...)

	result, err := s.runScript(ctx, luaRotateRefresh, []string{s.refreshKey(oldToken), nextKey}, args...)
	if err != nil {
		return fmt.Errorf("failed to execute atomic refresh rotation: %w", err)
	}
	switch result {
	case resultNotFound:
		return storage.ErrTokenNotFound
	case resultRevoked:
		return storage.ErrRefreshTokenRevoked
	}
	s.index(ctx, next.UserID, indexRefresh, nextKey)
	return nil
}

// DeleteTokens removes a user's access and refresh tokens.
func (s *Store) DeleteTokens(ctx context.Context, userID, clientID string) (err error) {
	ctx, done := s.op(ctx, "delete_tokens")
	defer func() { done(err) }()

	if err := s.deleteIndexed(ctx, userID, clientID, indexAccess, nil); err != nil {
		return err
	}
	return s.deleteIndexed(ctx, userID, clientID, indexRefresh, nil)
}
