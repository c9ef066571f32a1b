package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client and maintains the default pointer.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.op(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	c := *client
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if err := s.setJSON(ctx, s.clientKey(c.ClientID), &c); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	if c.IsDefault {
		err = s.client.Do(ctx, s.client.B().Set().Key(s.defaultClientKey()).Value(c.ClientID).Build()).Error()
	} else {
		var current string
		current, err = s.client.Do(ctx, s.client.B().Get().Key(s.defaultClientKey()).Build()).ToString()
		switch {
		case isNilError(err):
			err = nil
		case err == nil && current == c.ClientID:
			err = s.client.Do(ctx, s.client.B().Del().Key(s.defaultClientKey()).Build()).Error()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update default client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", c.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, done := s.op(ctx, "get_client")
	defer func() { done(err) }()

	var c storage.Client
	found, err := s.getJSON(ctx, s.clientKey(clientID), &c)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return &c, nil
}

// GetDefaultClient follows the default pointer.
func (s *Store) GetDefaultClient(ctx context.Context) (*storage.Client, error) {
	id, err := s.client.Do(ctx, s.client.B().Get().Key(s.defaultClientKey()).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, fmt.Errorf("%w: no default client", storage.ErrClientNotFound)
		}
		return nil, fmt.Errorf("failed to get default client: %w", err)
	}
	return s.GetClient(ctx, id)
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser saves a user and its username index.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) (err error) {
	ctx, done := s.op(ctx, "save_user")
	defer func() { done(err) }()

	if user == nil || user.ID == "" || user.Username == "" {
		return fmt.Errorf("user ID and username cannot be empty")
	}

	var prev storage.User
	found, err := s.getJSON(ctx, s.userKey(user.ID), &prev)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if found && prev.Username != user.Username {
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.usernameKey(prev.Username)).Build()).Error(); err != nil {
			return fmt.Errorf("failed to drop old username: %w", err)
		}
	}

	if err := s.setJSON(ctx, s.userKey(user.ID), user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Set().Key(s.usernameKey(user.Username)).Value(user.ID).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index username: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (_ *storage.User, err error) {
	ctx, done := s.op(ctx, "get_user")
	defer func() { done(err) }()

	var u storage.User
	found, err := s.getJSON(ctx, s.userKey(id), &u)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return nil, storage.ErrUserNotFound
	}
	return &u, nil
}

// GetUserByUsername resolves the username index.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	id, err := s.client.Do(ctx, s.client.B().Get().Key(s.usernameKey(username)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// ============================================================
// ConsentStore Implementation
// ============================================================

// GrantConsent replaces the consent record of (UserID, ClientID).
func (s *Store) GrantConsent(ctx context.Context, consent *storage.Consent) (err error) {
	ctx, done := s.op(ctx, "grant_consent")
	defer func() { done(err) }()

	if consent == nil || consent.UserID == "" || consent.ClientID == "" {
		return fmt.Errorf("consent user and client cannot be empty")
	}
	c := *consent
	if c.GrantedAt.IsZero() {
		c.GrantedAt = s.now()
	}
	if err := s.setJSON(ctx, s.consentKey(c.UserID, c.ClientID), &c); err != nil {
		return fmt.Errorf("failed to save consent: %w", err)
	}
	return nil
}

// GetConsent returns the consent of a user for a client.
func (s *Store) GetConsent(ctx context.Context, userID, clientID string) (_ *storage.Consent, err error) {
	ctx, done := s.op(ctx, "get_consent")
	defer func() { done(err) }()

	var c storage.Consent
	found, err := s.getJSON(ctx, s.consentKey(userID, clientID), &c)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	if !found {
		return nil, storage.ErrConsentNotFound
	}
	return &c, nil
}
