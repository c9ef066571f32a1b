package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/storage"
)

// SaveAuthorizationCode stores a code under the hash of its value.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, done := s.op(ctx, "save_authorization_code")
	defer func() { done(err) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}
	payload := *code
	payload.Code = ""

	key := s.codeKey(code.Code)
	if err := s.saveRecord(ctx, key, &payload, code.ExpiresAt, "consumed", boolField(code.Consumed)); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	s.index(ctx, code.UserID, indexCodes, key)

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode returns the code record, consumed or not.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, done := s.op(ctx, "get_authorization_code")
	defer func() { done(err) }()

	var c storage.AuthorizationCode
	fields, found, err := s.loadRecord(ctx, s.codeKey(code), &c)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	if !found {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	c.Code = code
	c.Consumed = fields["consumed"] == "1"
	return &c, nil
}

// ConsumeAuthorizationCode marks the code consumed atomically via Lua.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (_ bool, err error) {
	ctx, done := s.op(ctx, "consume_authorization_code")
	defer func() { done(err) }()

	result, err := s.runScript(ctx, luaConsumeCode, []string{s.codeKey(code)}, s.nowArg())
	if err != nil {
		return false, fmt.Errorf("failed to execute atomic code consume: %w", err)
	}
	switch result {
	case resultOK:
		return true, nil
	case resultNotFound:
		return false, storage.ErrAuthorizationCodeNotFound
	case resultRejected:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected script result %q", result)
	}
}

// DeleteAuthorizationCodes removes a user's codes.
func (s *Store) DeleteAuthorizationCodes(ctx context.Context, userID, clientID string) (err error) {
	ctx, done := s.op(ctx, "delete_authorization_codes")
	defer func() { done(err) }()

	return s.deleteIndexed(ctx, userID, clientID, indexCodes, nil)
}
