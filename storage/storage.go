package storage

import (
	"context"
	"time"
)

// ClientStore persists registered clients.
type ClientStore interface {
	// GetClient returns ErrClientNotFound for unknown client IDs.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// GetDefaultClient returns the client flagged IsDefault.
	GetDefaultClient(ctx context.Context) (*Client, error)

	// SaveClient creates or replaces a client.
	SaveClient(ctx context.Context, client *Client) error
}

// UserStore persists resource owners.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SaveUser(ctx context.Context, user *User) error
}

// AuthorizationCodeStore persists authorization codes.
type AuthorizationCodeStore interface {
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns the code record, consumed or not.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeAuthorizationCode marks the code consumed. It returns true to
	// exactly one caller; every later or concurrent call returns false.
	// Expired codes are never consumed.
	ConsumeAuthorizationCode(ctx context.Context, code string) (bool, error)

	// DeleteAuthorizationCodes removes all codes of a user, optionally
	// restricted to one client when clientID is non-empty.
	DeleteAuthorizationCodes(ctx context.Context, userID, clientID string) error
}

// TokenStore persists issued access and refresh tokens.
type TokenStore interface {
	SaveAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	RevokeAccessToken(ctx context.Context, token string) error

	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error

	// RotateRefreshToken atomically revokes oldToken, links it to next.ID
	// and stores next. It fails with ErrRefreshTokenRevoked when oldToken
	// was already revoked or rotated, and with ErrTokenNotFound when it is
	// unknown.
	RotateRefreshToken(ctx context.Context, oldToken string, next *RefreshToken) error

	// DeleteTokens removes all access and refresh tokens of a user,
	// optionally restricted to one client.
	DeleteTokens(ctx context.Context, userID, clientID string) error
}

// DeviceCodeStore persists device authorization grants.
type DeviceCodeStore interface {
	SaveDeviceCode(ctx context.Context, code *DeviceCode) error
	GetDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)

	// GetPendingDeviceCodeByUserCode only matches codes that are neither
	// authorized nor consumed.
	GetPendingDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)

	// AuthorizeDeviceCode binds a pending code to userID. It fails with
	// ErrDeviceCodeNotPending when the code was already authorized or consumed.
	AuthorizeDeviceCode(ctx context.Context, deviceCode, userID string) error

	// ConsumeDeviceCode marks an authorized code consumed. It returns true
	// to exactly one caller.
	ConsumeDeviceCode(ctx context.Context, deviceCode string) (bool, error)

	// DeleteDeviceCodes removes all device codes of a user, optionally
	// restricted to one client.
	DeleteDeviceCodes(ctx context.Context, userID, clientID string) error
}

// ConsentStore persists consent decisions.
type ConsentStore interface {
	// GrantConsent creates or replaces the record for (UserID, ClientID).
	GrantConsent(ctx context.Context, consent *Consent) error

	// GetConsent returns ErrConsentNotFound when the user never consented.
	GetConsent(ctx context.Context, userID, clientID string) (*Consent, error)
}

// Store composes every contract the engine needs.
type Store interface {
	ClientStore
	UserStore
	AuthorizationCodeStore
	TokenStore
	DeviceCodeStore
	ConsentStore
}

// ExpiredDeviceCodeRetention is how long a sweep keeps a device code past its
// expiry, so devices still polling get expired_token rather than invalid_grant.
const ExpiredDeviceCodeRetention = 10 * time.Minute

// Sweeper is implemented by stores that can purge expired records on demand.
// It is hygiene only: expiry is always enforced at lookup time.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}
