// Package util provides small helpers shared by the engine packages.
//
// Key utilities:
//   - SafeTruncate: shortens secrets before they reach a log line
//   - ParseScopes / JoinScopes: space-delimited scope handling (RFC 6749 section 3.3)
//   - ScopesSubset: scope containment checks used by authorize, consent and device flows
package util
