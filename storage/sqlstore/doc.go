// Package sqlstore implements storage.Store on database/sql.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go) and
// "mysql" (github.com/go-sql-driver/mysql). The schema is created on open
// and sticks to types both engines accept: VARCHAR keys, TEXT lists joined
// with spaces, BIGINT unix timestamps and BOOLEAN flags.
//
// Authorization codes, access tokens and refresh tokens are keyed by the
// SHA-256 of their value so a database dump never contains live
// credentials. Device codes are stored as issued because the verification
// page resolves them from the user code.
package sqlstore
