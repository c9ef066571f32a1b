package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

// SaveAuthorizationCode stores a new code keyed by its hash.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, done := s.op(ctx, "save_authorization_code")
	defer func() { done(err) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (code_hash, client_id, user_id, redirect_uri, scopes,
			code_challenge, code_challenge_method, expires_at, consumed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		security.HashToken(code.Code), code.ClientID, code.UserID, code.RedirectURI, joinList(code.Scopes),
		code.CodeChallenge, code.CodeChallengeMethod, toUnix(code.ExpiresAt), code.Consumed, toUnix(code.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode returns the code record, consumed or not.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, done := s.op(ctx, "get_authorization_code")
	defer func() { done(err) }()

	var (
		c                    = storage.AuthorizationCode{Code: code}
		scopes               string
		expiresAt, createdAt int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method,
			expires_at, consumed, created_at
		FROM authorization_codes WHERE code_hash = ?`, security.HashToken(code)).
		Scan(&c.ClientID, &c.UserID, &c.RedirectURI, &scopes, &c.CodeChallenge, &c.CodeChallengeMethod,
			&expiresAt, &c.Consumed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get authorization code: %w", err)
	}
	c.Scopes = splitList(scopes)
	c.ExpiresAt = fromUnix(expiresAt)
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

// ConsumeAuthorizationCode is a conditional UPDATE; the row count decides
// the single winner.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (_ bool, err error) {
	ctx, done := s.op(ctx, "consume_authorization_code")
	defer func() { done(err) }()

	hash := security.HashToken(code)
	res, err := s.db.ExecContext(ctx, `
		UPDATE authorization_codes SET consumed = ?
		WHERE code_hash = ? AND consumed = ? AND expires_at > ?`,
		true, hash, false, s.nowUnix())
	if err != nil {
		return false, fmt.Errorf("consume authorization code: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	found, err := exists(ctx, s.db, "SELECT 1 FROM authorization_codes WHERE code_hash = ?", hash)
	if err != nil {
		return false, fmt.Errorf("lookup authorization code: %w", err)
	}
	if !found {
		return false, storage.ErrAuthorizationCodeNotFound
	}
	return false, nil
}

// DeleteAuthorizationCodes removes a user's codes.
func (s *Store) DeleteAuthorizationCodes(ctx context.Context, userID, clientID string) (err error) {
	ctx, done := s.op(ctx, "delete_authorization_codes")
	defer func() { done(err) }()

	query, args := ownerFilter("DELETE FROM authorization_codes", userID, clientID)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete authorization codes: %w", err)
	}
	return nil
}

// ownerFilter appends the (user_id, optional client_id) predicate.
func ownerFilter(stmt, userID, clientID string) (string, []any) {
	if clientID == "" {
		return stmt + " WHERE user_id = ?", []any{userID}
	}
	return stmt + " WHERE user_id = ? AND client_id = ?", []any{userID, clientID}
}
