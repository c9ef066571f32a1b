package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

// SaveDeviceCode stores a device authorization and its user code pointer.
func (s *Store) SaveDeviceCode(ctx context.Context, code *storage.DeviceCode) (err error) {
	ctx, done := s.op(ctx, "save_device_code")
	defer func() { done(err) }()

	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		return fmt.Errorf("device code and user code cannot be empty")
	}
	key := s.deviceKey(code.DeviceCode)
	err = s.saveRecord(ctx, key, code, code.ExpiresAt,
		"authorized", boolField(code.Authorized),
		"consumed", boolField(code.Consumed),
		"user_id", code.UserID)
	if err != nil {
		return fmt.Errorf("failed to save device code: %w", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.userCodeKey(code.UserCode)).Value(code.DeviceCode).Ex(s.ttlFor(code.ExpiresAt)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save user code: %w", err)
	}
	s.index(ctx, code.UserID, indexDevices, key)
	return nil
}

// GetDeviceCode returns the record for a device code.
func (s *Store) GetDeviceCode(ctx context.Context, deviceCode string) (_ *storage.DeviceCode, err error) {
	ctx, done := s.op(ctx, "get_device_code")
	defer func() { done(err) }()

	return s.getDevice(ctx, deviceCode)
}

func (s *Store) getDevice(ctx context.Context, deviceCode string) (*storage.DeviceCode, error) {
	var d storage.DeviceCode
	fields, found, err := s.loadRecord(ctx, s.deviceKey(deviceCode), &d)
	if err != nil {
		return nil, fmt.Errorf("failed to get device code: %w", err)
	}
	if !found {
		return nil, storage.ErrDeviceCodeNotFound
	}
	d.Authorized = fields["authorized"] == "1"
	d.Consumed = fields["consumed"] == "1"
	d.UserID = fields["user_id"]
	return &d, nil
}

// GetPendingDeviceCodeByUserCode only matches unexpired pending codes.
func (s *Store) GetPendingDeviceCodeByUserCode(ctx context.Context, userCode string) (_ *storage.DeviceCode, err error) {
	ctx, done := s.op(ctx, "get_device_code_by_user_code")
	defer func() { done(err) }()

	deviceCode, err := s.client.Do(ctx, s.client.B().Get().Key(s.userCodeKey(userCode)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrDeviceCodeNotFound
		}
		return nil, fmt.Errorf("failed to resolve user code: %w", err)
	}
	d, err := s.getDevice(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if !d.IsPending() || !d.ExpiresAt.After(s.now()) {
		return nil, storage.ErrDeviceCodeNotFound
	}
	return d, nil
}

// AuthorizeDeviceCode binds a pending code to a user atomically via Lua.
func (s *Store) AuthorizeDeviceCode(ctx context.Context, deviceCode, userID string) (err error) {
	ctx, done := s.op(ctx, "authorize_device_code")
	defer func() { done(err) }()

	key := s.deviceKey(deviceCode)
	result, err := s.runScript(ctx, luaAuthorizeDevice, []string{key}, s.nowArg(), userID)
	if err != nil {
		return fmt.Errorf("failed to execute atomic device authorization: %w", err)
	}
	switch result {
	case resultNotFound:
		return storage.ErrDeviceCodeNotFound
	case resultNotPending:
		return storage.ErrDeviceCodeNotPending
	}
	s.index(ctx, userID, indexDevices, key)
	return nil
}

// ConsumeDeviceCode flips consumed on an authorized, unexpired code.
func (s *Store) ConsumeDeviceCode(ctx context.Context, deviceCode string) (_ bool, err error) {
	ctx, done := s.op(ctx, "consume_device_code")
	defer func() { done(err) }()

	result, err := s.runScript(ctx, luaConsumeDevice, []string{s.deviceKey(deviceCode)}, s.nowArg())
	if err != nil {
		return false, fmt.Errorf("failed to execute atomic device consume: %w", err)
	}
	switch result {
	case resultOK:
		return true, nil
	case resultNotFound:
		return false, storage.ErrDeviceCodeNotFound
	case resultRejected:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected script result %q", result)
	}
}

// DeleteDeviceCodes removes a user's device codes and their user codes.
func (s *Store) DeleteDeviceCodes(ctx context.Context, userID, clientID string) (err error) {
	ctx, done := s.op(ctx, "delete_device_codes")
	defer func() { done(err) }()

	return s.deleteIndexed(ctx, userID, clientID, indexDevices, func(rec ownedRecord) {
		if rec.UserCode == "" {
			return
		}
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.userCodeKey(rec.UserCode)).Build()).Error(); err != nil {
			s.logger.Warn("Failed to delete user code", "error", err)
		}
	})
}
