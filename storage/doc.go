// Package storage defines the records and store contracts the authorization
// server engine persists through.
//
// The engine never touches a database directly. Hosts hand it a Store, which
// composes one contract per record kind:
//   - ClientStore: registered OAuth clients
//   - UserStore: resource owners (read-only from the engine's point of view)
//   - AuthorizationCodeStore: single-use authorization codes
//   - TokenStore: issued access and refresh tokens, including rotation
//   - DeviceCodeStore: device authorization grant state
//   - ConsentStore: per user and client consent records
//
// Single-use resources (authorization codes, device codes and refresh tokens)
// must be consumed atomically: ConsumeAuthorizationCode, ConsumeDeviceCode and
// RotateRefreshToken report success to exactly one caller even under
// concurrent requests.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process maps, for tests and single-node deployments
//   - storage/sqlstore: database/sql backed store for SQLite and MySQL
//   - storage/valkey: Valkey/Redis-compatible distributed store
//
// The storagetest subpackage holds the contract suite every implementation runs.
package storage
