package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

const userColumns = "id, username, email, first_name, last_name, active, password_hash"

func scanUser(row rowScanner) (*storage.User, error) {
	var u storage.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Active, &u.PasswordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, operation, column, value string) (_ *storage.User, err error) {
	ctx, done := s.op(ctx, operation)
	defer func() { done(err) }()

	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+column+" = ?", value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user or ErrUserNotFound.
func (s *Store) GetUserByID(ctx context.Context, id string) (*storage.User, error) {
	return s.getUser(ctx, "get_user", "id", id)
}

// GetUserByUsername returns the user or ErrUserNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	return s.getUser(ctx, "get_user_by_username", "username", username)
}

// SaveUser creates or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) (err error) {
	ctx, done := s.op(ctx, "save_user")
	defer func() { done(err) }()

	if user == nil || user.ID == "" || user.Username == "" {
		return fmt.Errorf("user ID and username cannot be empty")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", user.ID); err != nil {
			return fmt.Errorf("replace user: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
			user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.Active, user.PasswordHash)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}
