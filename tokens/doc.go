// Package tokens signs and verifies the JWTs the authorization server hands out.
//
// Every token (access, refresh and ID token) is an RS256-signed JWT carrying a
// token_type claim so one kind can never be replayed as another. The Issuer
// owns the private key; the Verifier only needs the public half, and the JWKS
// document exposes that half to relying parties.
//
// Keys are loaded once at construction (PEM PKCS#8 private key and PKIX public
// key) or generated when no files are configured, and are read-only afterwards,
// so Issuer and Verifier are safe for concurrent use.
package tokens
