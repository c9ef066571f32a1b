// Package security holds the cross-cutting protections of the authorization
// server: audit logging with hashed identifiers, per-client-IP rate limiting,
// response security headers, request IDs, AES-GCM sealing for session cookies,
// and secret hashing for client secrets and user passwords.
package security
