package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-engine/storage"
)

const deviceColumns = `device_code, id, user_code, client_id, user_id, scopes, expires_at,
	interval_seconds, authorized, consumed, created_at`

func scanDevice(row rowScanner) (*storage.DeviceCode, error) {
	var (
		d                    storage.DeviceCode
		scopes               string
		expiresAt, createdAt int64
	)
	err := row.Scan(&d.DeviceCode, &d.ID, &d.UserCode, &d.ClientID, &d.UserID, &scopes, &expiresAt,
		&d.Interval, &d.Authorized, &d.Consumed, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Scopes = splitList(scopes)
	d.ExpiresAt = fromUnix(expiresAt)
	d.CreatedAt = fromUnix(createdAt)
	return &d, nil
}

// SaveDeviceCode stores a new device authorization.
func (s *Store) SaveDeviceCode(ctx context.Context, code *storage.DeviceCode) (err error) {
	ctx, done := s.op(ctx, "save_device_code")
	defer func() { done(err) }()

	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		return fmt.Errorf("device code and user code cannot be empty")
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO device_codes ("+deviceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		code.DeviceCode, code.ID, code.UserCode, code.ClientID, code.UserID, joinList(code.Scopes),
		toUnix(code.ExpiresAt), code.Interval, code.Authorized, code.Consumed, toUnix(code.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert device code: %w", err)
	}
	return nil
}

// GetDeviceCode returns the record for a device code.
func (s *Store) GetDeviceCode(ctx context.Context, deviceCode string) (_ *storage.DeviceCode, err error) {
	ctx, done := s.op(ctx, "get_device_code")
	defer func() { done(err) }()

	d, err := scanDevice(s.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM device_codes WHERE device_code = ?", deviceCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDeviceCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device code: %w", err)
	}
	return d, nil
}

// GetPendingDeviceCodeByUserCode only matches unexpired pending codes.
func (s *Store) GetPendingDeviceCodeByUserCode(ctx context.Context, userCode string) (_ *storage.DeviceCode, err error) {
	ctx, done := s.op(ctx, "get_device_code_by_user_code")
	defer func() { done(err) }()

	d, err := scanDevice(s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM device_codes
		WHERE user_code = ? AND authorized = ? AND consumed = ? AND expires_at > ?`,
		userCode, false, false, s.nowUnix()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDeviceCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device code by user code: %w", err)
	}
	return d, nil
}

// AuthorizeDeviceCode binds a pending code to a user.
func (s *Store) AuthorizeDeviceCode(ctx context.Context, deviceCode, userID string) (err error) {
	ctx, done := s.op(ctx, "authorize_device_code")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx, `
		UPDATE device_codes SET authorized = ?, user_id = ?
		WHERE device_code = ? AND authorized = ? AND consumed = ? AND expires_at > ?`,
		true, userID, deviceCode, false, false, s.nowUnix())
	if err != nil {
		return fmt.Errorf("authorize device code: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	found, err := exists(ctx, s.db, "SELECT 1 FROM device_codes WHERE device_code = ?", deviceCode)
	if err != nil {
		return fmt.Errorf("lookup device code: %w", err)
	}
	if !found {
		return storage.ErrDeviceCodeNotFound
	}
	return storage.ErrDeviceCodeNotPending
}

// ConsumeDeviceCode flips consumed on an authorized, unexpired code.
func (s *Store) ConsumeDeviceCode(ctx context.Context, deviceCode string) (_ bool, err error) {
	ctx, done := s.op(ctx, "consume_device_code")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx, `
		UPDATE device_codes SET consumed = ?
		WHERE device_code = ? AND authorized = ? AND consumed = ? AND expires_at > ?`,
		true, deviceCode, true, false, s.nowUnix())
	if err != nil {
		return false, fmt.Errorf("consume device code: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	found, err := exists(ctx, s.db, "SELECT 1 FROM device_codes WHERE device_code = ?", deviceCode)
	if err != nil {
		return false, fmt.Errorf("lookup device code: %w", err)
	}
	if !found {
		return false, storage.ErrDeviceCodeNotFound
	}
	return false, nil
}

// DeleteDeviceCodes removes a user's device codes.
func (s *Store) DeleteDeviceCodes(ctx context.Context, userID, clientID string) (err error) {
	ctx, done := s.op(ctx, "delete_device_codes")
	defer func() { done(err) }()

	query, args := ownerFilter("DELETE FROM device_codes", userID, clientID)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete device codes: %w", err)
	}
	return nil
}
