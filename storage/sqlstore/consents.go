package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

// GrantConsent upserts the consent record.
func (s *Store) GrantConsent(ctx context.Context, consent *storage.Consent) (err error) {
	ctx, done := s.op(ctx, "grant_consent")
	defer func() { done(err) }()

	if consent == nil || consent.UserID == "" || consent.ClientID == "" {
		return fmt.Errorf("consent user and client cannot be empty")
	}
	grantedAt := consent.GrantedAt
	if grantedAt.IsZero() {
		grantedAt = s.now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM consents WHERE user_id = ? AND client_id = ?", consent.UserID, consent.ClientID); err != nil {
			return fmt.Errorf("replace consent: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO consents (user_id, client_id, scopes, granted_at) VALUES (?, ?, ?, ?)",
			consent.UserID, consent.ClientID, joinList(consent.Scopes), toUnix(grantedAt))
		if err != nil {
			return fmt.Errorf("insert consent: %w", err)
		}
		return nil
	})
}

// GetConsent returns the consent record of a user for a client.
func (s *Store) GetConsent(ctx context.Context, userID, clientID string) (_ *storage.Consent, err error) {
	ctx, done := s.op(ctx, "get_consent")
	defer func() { done(err) }()

	var (
		c         = storage.Consent{UserID: userID, ClientID: clientID}
		scopes    string
		grantedAt int64
	)
	err = s.db.QueryRowContext(ctx,
		"SELECT scopes, granted_at FROM consents WHERE user_id = ? AND client_id = ?", userID, clientID).
		Scan(&scopes, &grantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get consent: %w", err)
	}
	c.Scopes = splitList(scopes)
	c.GrantedAt = fromUnix(grantedAt)
	return &c, nil
}
