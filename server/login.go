package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

// ErrInvalidCredentials is returned by Login for unknown users, inactive
// users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// placeholderHash is verified against when the username is unknown, so that
// the response time does not reveal which usernames exist.
var placeholderHash = sync.OnceValue(func() string {
	h, err := security.HashSecret("placeholder-password")
	if err != nil {
		return ""
	}
	return h
})

// Login verifies a username and password.
func (s *Server) Login(ctx context.Context, username, password, clientIP string) (*storage.User, error) {
	ctx, span := s.startSpan(ctx, "oauth.login")
	user, err := s.login(ctx, username, password)
	finishSpan(span, err)

	success := err == nil
	if m := s.metrics(); m != nil {
		m.RecordLoginAttempt(ctx, success)
	}
	userID := ""
	if user != nil {
		userID = user.ID
	}
	if errors.Is(err, ErrInvalidCredentials) || success {
		s.Auditor.LogLogin(userID, username, clientIP, success)
	}
	return user, err
}

func (s *Server) login(ctx context.Context, username, password string) (*storage.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.passwords.VerifyPassword(&storage.User{Username: username, PasswordHash: placeholderHash()}, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	verified := s.passwords.VerifyPassword(user, password)
	if !user.Active || !verified {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Logout deletes the codes, tokens and device codes of userID, restricted
// to clientID when it is non-empty.
func (s *Server) Logout(ctx context.Context, userID, clientID, clientIP string) error {
	if err := s.store.DeleteAuthorizationCodes(ctx, userID, clientID); err != nil {
		return fmt.Errorf("delete authorization codes: %w", err)
	}
	if err := s.store.DeleteTokens(ctx, userID, clientID); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	if err := s.store.DeleteDeviceCodes(ctx, userID, clientID); err != nil {
		return fmt.Errorf("delete device codes: %w", err)
	}
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventLogout,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: clientIP,
	})
	return nil
}
