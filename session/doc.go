// Package session holds the browser session contract of the authorization
// server.
//
// The engine only needs an opaque key/value store scoped to the user agent.
// Two keys are used: KeyUserSession carries the JSON encoded UserSession of
// the logged-in user, KeyOriginalURL remembers where to resume after a login
// or consent detour.
//
// CookieStore is the built-in implementation: each key is its own cookie,
// sealed with AES-256-GCM so the browser can neither read nor forge it.
package session
