package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/storage"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
	PKCEMethodPlain       = "plain"
)

// URI scheme constants
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// validateIssuer rejects issuers that are not absolute http(s) URLs.
func validateIssuer(issuer string) error {
	if issuer == "" {
		return nil
	}
	u, err := url.Parse(issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if u.Scheme != SchemeHTTP && u.Scheme != SchemeHTTPS {
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid issuer URL: missing host")
	}
	return nil
}

// isSecureIssuer reports whether issuer uses HTTPS or points at the local machine.
func isSecureIssuer(issuer string) bool {
	u, err := url.Parse(issuer)
	if err != nil {
		return false
	}
	return u.Scheme == SchemeHTTPS || isLocalhostHostname(u.Hostname())
}

// isLocalhostHostname checks if a hostname refers to the local machine.
// This includes the whole IPv4 loopback range, IPv6 loopback and localhost.
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	ip := net.ParseIP(strings.Trim(hostname, "[]"))
	return ip != nil && ip.IsLoopback()
}

// validateRedirectURI checks redirectURI against client. Registered URIs
// always match exactly. The default client may additionally redirect to any
// path on the origin serving the request.
func validateRedirectURI(client *storage.Client, redirectURI, requestOrigin string) error {
	if slices.Contains(client.RedirectURIs, redirectURI) {
		return nil
	}
	if !client.IsDefault {
		return fmt.Errorf("redirect_uri is not registered for this client")
	}
	if !sameOrigin(redirectURI, requestOrigin) {
		return fmt.Errorf("redirect_uri must be on the server origin for the default client")
	}
	return nil
}

// sameOrigin compares scheme and host (including port) of two URLs.
func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || ua.Host == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil || ub.Host == "" {
		return false
	}
	if ua.Scheme != SchemeHTTP && ua.Scheme != SchemeHTTPS {
		return false
	}
	if ua.User != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// resolveScopes returns the requested scopes, or every client scope when
// none were requested.
func resolveScopes(requested string, client *storage.Client) ([]string, error) {
	scopes := util.ParseScopes(requested)
	if len(scopes) == 0 {
		return slices.Clone(client.Scopes), nil
	}
	if !util.ScopesSubset(scopes, client.Scopes) {
		return nil, ErrInvalidScope("requested scope exceeds the scopes registered for the client")
	}
	return scopes, nil
}

// normalizePKCEMethod applies the RFC 7636 default of "plain" when a
// challenge is sent without a method.
func (s *Server) normalizePKCEMethod(challenge, method string) (string, error) {
	if challenge == "" {
		if method != "" {
			return "", ErrInvalidRequest("code_challenge_method without code_challenge")
		}
		return "", nil
	}
	if method == "" {
		method = PKCEMethodPlain
	}
	switch method {
	case PKCEMethodS256:
		return method, nil
	case PKCEMethodPlain:
		if s.Config.DisablePKCEPlain {
			return "", ErrInvalidRequest("'plain' code_challenge_method is not allowed")
		}
		return method, nil
	default:
		return "", ErrInvalidRequest(fmt.Sprintf("unsupported code_challenge_method: %s", util.SafeTruncate(method, 16)))
	}
}

// validatePKCE validates the PKCE code verifier against the challenge per RFC 7636
func validatePKCE(challenge, method, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') &&
			ch != '-' && ch != '.' && ch != '_' && ch != '~' {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computed string
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case PKCEMethodPlain, "":
		computed = verifier
	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}
