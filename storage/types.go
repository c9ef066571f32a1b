package storage

import (
	"strings"
	"time"
)

// Client types.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Grant types a client may be allow-listed for.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// Client is a registered OAuth client.
type Client struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	ClientType string `json:"client_type"`

	// ClientSecretHash is a bcrypt hash; empty for public clients.
	ClientSecretHash string `json:"client_secret_hash,omitempty"`

	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`

	// Token lifetimes in seconds.
	AccessTokenTTL  int64 `json:"access_token_ttl"`
	RefreshTokenTTL int64 `json:"refresh_token_ttl"`

	// IsDefault marks the first-party client whose redirect URI is checked
	// against the request origin instead of the registered list.
	IsDefault       bool      `json:"is_default"`
	ConsentRequired bool      `json:"consent_required"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsPublic reports whether the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

// AllowsGrant reports whether grantType is on the client's allow-list.
func (c *Client) AllowsGrant(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// User is a resource owner.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Active       bool   `json:"active"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// DisplayName joins first and last name.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// AuthorizationCode is a short-lived, single-use code bound to a client,
// user, redirect URI and optional PKCE challenge.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              []string  `json:"scopes"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
	Consumed            bool      `json:"consumed"`
	CreatedAt           time.Time `json:"created_at"`
}

// AccessToken is the stored record of an issued access token.
type AccessToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the stored record of an issued refresh token.
type RefreshToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`

	// RotatedTo is the ID of the refresh token that superseded this one.
	RotatedTo string `json:"rotated_to,omitempty"`
}

// DeviceCode tracks one device authorization grant.
type DeviceCode struct {
	ID         string    `json:"id"`
	DeviceCode string    `json:"device_code"`
	UserCode   string    `json:"user_code"`
	ClientID   string    `json:"client_id"`
	UserID     string    `json:"user_id,omitempty"`
	Scopes     []string  `json:"scopes"`
	ExpiresAt  time.Time `json:"expires_at"`
	Interval   int64     `json:"interval"`
	Authorized bool      `json:"authorized"`
	Consumed   bool      `json:"consumed"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsPending reports whether the code still awaits user approval.
func (d *DeviceCode) IsPending() bool {
	return !d.Authorized && !d.Consumed
}

// Consent records which scopes a user granted to a client.
type Consent struct {
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	GrantedAt time.Time `json:"granted_at"`
}
