// Package testutil provides fixtures shared by the engine's tests: a cached
// RSA signing key, PKCE pairs, and a standard set of clients and users that
// can be seeded into any storage.Store.
package testutil
