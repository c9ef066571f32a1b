// Package valkey provides a Valkey storage backend for the OAuth engine.
//
// Valkey is wire-compatible with Redis. The store suits deployments that run
// several engine replicas against shared state and want TTL-based expiry.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:"):
//
//	{prefix}client:{clientID}            -> JSON(Client)
//	{prefix}client:default               -> clientID of the default client
//	{prefix}user:{userID}                -> JSON(User)
//	{prefix}username:{username}          -> userID
//	{prefix}code:{sha256(code)}          -> HASH(data, exp, consumed)
//	{prefix}access:{sha256(token)}       -> HASH(data, exp, revoked)
//	{prefix}refresh:{sha256(token)}      -> HASH(data, exp, revoked, rotated_to)
//	{prefix}device:{deviceCode}          -> HASH(data, exp, authorized, consumed, user_id)
//	{prefix}usercode:{userCode}          -> deviceCode
//	{prefix}consent:{userID}:{clientID}  -> JSON(Consent)
//	{prefix}index:{userID}:{kind}        -> SET of record keys, used by logout
//
// Records carry an immutable JSON "data" field plus mutable state fields so
// the Lua scripts that flip state never re-encode JSON.
//
// # Atomic Operations
//
// ConsumeAuthorizationCode, RotateRefreshToken, AuthorizeDeviceCode and
// ConsumeDeviceCode run as Lua scripts, so exactly one concurrent caller wins
// across every replica. The scripts touch more than one key only for
// rotation; in cluster mode pin the prefix to one slot with a hash tag,
// e.g. "{oauth}:".
//
// # Expiry
//
// Records keep living for a short retention window after ExpiresAt so the
// engine can still answer expired_token instead of invalid_grant. Expiry is
// always checked against ExpiresAt, never inferred from key presence.
//
// # Encryption at Rest
//
// SetEncryptor seals every JSON payload with AES-256-GCM, bound to its key
// name as associated data.
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
package valkey
