package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

// SaveAccessToken stores an issued access token keyed by its hash.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, done := s.op(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (token_hash, id, client_id, user_id, scopes, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		security.HashToken(token.Token), token.ID, token.ClientID, token.UserID, joinList(token.Scopes),
		toUnix(token.ExpiresAt), token.Revoked, toUnix(token.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

// GetAccessToken returns the stored record for a token value.
func (s *Store) GetAccessToken(ctx context.Context, token string) (_ *storage.AccessToken, err error) {
	ctx, done := s.op(ctx, "get_access_token")
	defer func() { done(err) }()

	var (
		t                    = storage.AccessToken{Token: token}
		scopes               string
		expiresAt, createdAt int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, client_id, user_id, scopes, expires_at, revoked, created_at
		FROM access_tokens WHERE token_hash = ?`, security.HashToken(token)).
		Scan(&t.ID, &t.ClientID, &t.UserID, &scopes, &expiresAt, &t.Revoked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}
	t.Scopes = splitList(scopes)
	t.ExpiresAt = fromUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	return &t, nil
}

// RevokeAccessToken marks an access token revoked.
func (s *Store) RevokeAccessToken(ctx context.Context, token string) (err error) {
	ctx, done := s.op(ctx, "revoke_access_token")
	defer func() { done(err) }()

	return s.revoke(ctx, "access_tokens", token)
}

// SaveRefreshToken stores an issued refresh token keyed by its hash.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, done := s.op(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	return insertRefresh(ctx, s.db, token)
}

func insertRefresh(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, token *storage.RefreshToken) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, id, client_id, user_id, scopes, expires_at, revoked, rotated_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		security.HashToken(token.Token), token.ID, token.ClientID, token.UserID, joinList(token.Scopes),
		toUnix(token.ExpiresAt), token.Revoked, token.RotatedTo, toUnix(token.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the stored record for a token value.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (_ *storage.RefreshToken, err error) {
	ctx, done := s.op(ctx, "get_refresh_token")
	defer func() { done(err) }()

	var (
		t                    = storage.RefreshToken{Token: token}
		scopes               string
		expiresAt, createdAt int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, client_id, user_id, scopes, expires_at, revoked, rotated_to, created_at
		FROM refresh_tokens WHERE token_hash = ?`, security.HashToken(token)).
		Scan(&t.ID, &t.ClientID, &t.UserID, &scopes, &expiresAt, &t.Revoked, &t.RotatedTo, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	t.Scopes = splitList(scopes)
	t.ExpiresAt = fromUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	return &t, nil
}

// RevokeRefreshToken marks a refresh token revoked.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) (err error) {
	ctx, done := s.op(ctx, "revoke_refresh_token")
	defer func() { done(err) }()

	return s.revoke(ctx, "refresh_tokens", token)
}

func (s *Store) revoke(ctx context.Context, table, token string) error {
	hash := security.HashToken(token)
	found, err := exists(ctx, s.db, "SELECT 1 FROM "+table+" WHERE token_hash = ?", hash)
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	if !found {
		return storage.ErrTokenNotFound
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET revoked = ? WHERE token_hash = ?", true, hash); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RotateRefreshToken revokes oldToken and stores next in one transaction.
// The conditional UPDATE on revoked = false lets exactly one rotation win.
func (s *Store) RotateRefreshToken(ctx context.Context, oldToken string, next *storage.RefreshToken) (err error) {
	ctx, done := s.op(ctx, "rotate_refresh_token")
	defer func() { done(err) }()

	if next == nil || next.Token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	oldHash := security.HashToken(oldToken)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens SET revoked = ?, rotated_to = ?
			WHERE token_hash = ? AND revoked = ?`,
			true, next.ID, oldHash, false)
		if err != nil {
			return fmt.Errorf("revoke rotated refresh token: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			found, err := exists(ctx, tx, "SELECT 1 FROM refresh_tokens WHERE token_hash = ?", oldHash)
			if err != nil {
				return fmt.Errorf("lookup refresh token: %w", err)
			}
			if !found {
				return storage.ErrTokenNotFound
			}
			return storage.ErrRefreshTokenRevoked
		}
		return insertRefresh(ctx, tx, next)
	})
}

// DeleteTokens removes a user's access and refresh tokens.
func (s *Store) DeleteTokens(ctx context.Context, userID, clientID string) (err error) {
	ctx, done := s.op(ctx, "delete_tokens")
	defer func() { done(err) }()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"access_tokens", "refresh_tokens"} {
			query, args := ownerFilter("DELETE FROM "+table, userID, clientID)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		return nil
	})
}
