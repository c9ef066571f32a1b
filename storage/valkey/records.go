package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Lua scripts. Every script that mutates a record checks EXISTS first so a
// write never resurrects an evicted key without a TTL.
const (
	luaSaveRecord = `
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 'OK'`

	luaConsumeCode = `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
local f = redis.call('HMGET', KEYS[1], 'consumed', 'exp')
if f[1] == '1' or tonumber(f[2]) <= tonumber(ARGV[1]) then return 'REJECTED' end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 'OK'`

	luaRevoke = `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 'OK'`

	luaRotateRefresh = `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then return 'REVOKED' end
redis.call('HSET', KEYS[1], 'revoked', '1', 'rotated_to', ARGV[1])
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return 'OK'`

	luaAuthorizeDevice = `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
local f = redis.call('HMGET', KEYS[1], 'authorized', 'consumed', 'exp')
if f[1] == '1' or f[2] == '1' or tonumber(f[3]) <= tonumber(ARGV[1]) then return 'NOT_PENDING' end
redis.call('HSET', KEYS[1], 'authorized', '1', 'user_id', ARGV[2])
return 'OK'`

	luaConsumeDevice = `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
local f = redis.call('HMGET', KEYS[1], 'authorized', 'consumed', 'exp')
if f[1] ~= '1' or f[2] == '1' or tonumber(f[3]) <= tonumber(ARGV[1]) then return 'REJECTED' end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 'OK'`
)

// Script results.
const (
	resultOK         = "OK"
	resultNotFound   = "NOT_FOUND"
	resultRejected   = "REJECTED"
	resultRevoked    = "REVOKED"
	resultNotPending = "NOT_PENDING"
)

// recordArgs builds the HSET field list of a hash record: the sealed JSON
// payload, the expiry as unix seconds, then the mutable state fields.
func (s *Store) recordArgs(key string, payload any, expiresAt time.Time, state ...string) ([]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	sealed, err := s.seal(key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal record: %w", err)
	}
	args := []string{"data", sealed, "exp", strconv.FormatInt(expiresAt.Unix(), 10)}
	return append(args, state...), nil
}

func ttlArg(ttl time.Duration) string {
	return strconv.FormatInt(ttl.Milliseconds(), 10)
}

// saveRecord replaces the hash at key.
func (s *Store) saveRecord(ctx context.Context, key string, payload any, expiresAt time.Time, state ...string) error {
	fields, err := s.recordArgs(key, payload, expiresAt, state...)
	if err != nil {
		return err
	}
	args := append([]string{ttlArg(s.ttlFor(expiresAt))}, fields...)
	return s.client.Do(ctx,
		s.client.B().Eval().Script(luaSaveRecord).
			Numkeys(1).
			Key(key).
			Arg(args...).
			Build(),
	).Error()
}

// loadRecord returns the state fields of the hash at key and decodes its
// payload into dst. found is false when the key does not exist.
func (s *Store) loadRecord(ctx context.Context, key string, dst any) (fields map[string]string, found bool, err error) {
	fields, err = s.client.Do(ctx, s.client.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		if isNilError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	data, err := s.open(key, fields["data"])
	if err != nil {
		return nil, false, fmt.Errorf("failed to open record: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return fields, true, nil
}

// runScript evaluates a Lua script and returns its status string.
func (s *Store) runScript(ctx context.Context, script string, keys []string, args ...string) (string, error) {
	return s.client.Do(ctx,
		s.client.B().Eval().Script(script).
			Numkeys(int64(len(keys))).
			Key(keys...).
			Arg(args...).
			Build(),
	).ToString()
}

// setJSON stores a sealed JSON value without TTL.
func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	sealed, err := s.seal(key, data)
	if err != nil {
		return fmt.Errorf("failed to seal: %w", err)
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(sealed).Build()).Error()
}

// getJSON loads a value written by setJSON. found is false for missing keys.
func (s *Store) getJSON(ctx context.Context, key string, dst any) (found bool, err error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, err
	}
	data, err := s.open(key, value)
	if err != nil {
		return false, fmt.Errorf("failed to open value: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// index adds a record key to the user's set of kind. Failures only cost
// logout completeness and are logged.
func (s *Store) index(ctx context.Context, userID, kind, recordKey string) {
	if userID == "" {
		return
	}
	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(s.indexKey(userID, kind)).Member(recordKey).Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to index record", "user_id", userID, "kind", kind, "error", err)
	}
}

// ownedRecord is the subset of a payload needed to filter deletions.
type ownedRecord struct {
	ClientID string `json:"client_id"`
	UserCode string `json:"user_code"`
}

// deleteIndexed removes every record in the user's set of kind, optionally
// narrowed to clientID. onDelete sees each removed record.
func (s *Store) deleteIndexed(ctx context.Context, userID, clientID, kind string, onDelete func(ownedRecord)) error {
	setKey := s.indexKey(userID, kind)
	members, err := s.client.Do(ctx, s.client.B().Smembers().Key(setKey).Build()).AsStrSlice()
	if err != nil {
		if isNilError(err) {
			return nil
		}
		return fmt.Errorf("failed to list %s of user: %w", kind, err)
	}

	for _, key := range members {
		var rec ownedRecord
		_, found, err := s.loadRecord(ctx, key, &rec)
		if err != nil {
			return err
		}
		if found && clientID != "" && rec.ClientID != clientID {
			continue
		}
		if found {
			if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
			if onDelete != nil {
				onDelete(rec)
			}
		}
		if err := s.client.Do(ctx, s.client.B().Srem().Key(setKey).Member(key).Build()).Error(); err != nil {
			return fmt.Errorf("failed to update index: %w", err)
		}
	}
	return nil
}
