package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

const clientColumns = `client_id, client_name, client_type, client_secret_hash, redirect_uris, scopes,
	grant_types, access_token_ttl, refresh_token_ttl, is_default, consent_required, created_at`

func scanClient(row rowScanner) (*storage.Client, error) {
	var (
		c                         storage.Client
		redirects, scopes, grants string
		createdAt                 int64
	)
	err := row.Scan(&c.ClientID, &c.ClientName, &c.ClientType, &c.ClientSecretHash,
		&redirects, &scopes, &grants, &c.AccessTokenTTL, &c.RefreshTokenTTL,
		&c.IsDefault, &c.ConsentRequired, &createdAt)
	if err != nil {
		return nil, err
	}
	c.RedirectURIs = splitList(redirects)
	c.Scopes = splitList(scopes)
	c.GrantTypes = splitList(grants)
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

// GetClient returns the client or ErrClientNotFound.
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, done := s.op(ctx, "get_client")
	defer func() { done(err) }()

	c, err := scanClient(s.db.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE client_id = ?", clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// GetDefaultClient returns the client flagged is_default.
func (s *Store) GetDefaultClient(ctx context.Context) (_ *storage.Client, err error) {
	ctx, done := s.op(ctx, "get_default_client")
	defer func() { done(err) }()

	c, err := scanClient(s.db.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE is_default = ? ORDER BY client_id LIMIT 1", true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no default client", storage.ErrClientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get default client: %w", err)
	}
	return c, nil
}

// SaveClient creates or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.op(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	createdAt := client.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM clients WHERE client_id = ?", client.ClientID); err != nil {
			return fmt.Errorf("replace client: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO clients ("+clientColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			client.ClientID, client.ClientName, client.ClientType, client.ClientSecretHash,
			joinList(client.RedirectURIs), joinList(client.Scopes), joinList(client.GrantTypes),
			client.AccessTokenTTL, client.RefreshTokenTTL, client.IsDefault, client.ConsentRequired,
			toUnix(createdAt))
		if err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		return nil
	})
}
