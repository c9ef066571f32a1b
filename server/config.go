package server

import (
	"log/slog"
	"time"
)

// Default lifetimes in seconds.
const (
	DefaultAuthorizationCodeTTL = 300
	DefaultDeviceCodeTTL        = 1200
	DefaultDeviceCodeInterval   = 5
	DefaultSessionTimeout       = 3200
	DefaultRememberMeTimeout    = 31536000
	DefaultClockSkewGracePeriod = 5
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). When empty the
	// issuer is derived from each request's scheme and host.
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 300 (5 minutes)

	// DeviceCodeTTL is how long a device authorization stays pollable
	DeviceCodeTTL int64 // seconds, default: 1200 (20 minutes)

	// DeviceCodeInterval is the minimum polling interval handed to devices
	DeviceCodeInterval int64 // seconds, default: 5

	// SessionTimeout is the lifetime of a login session
	SessionTimeout int64 // seconds, default: 3200

	// RememberMeTimeout replaces SessionTimeout when the user ticked "remember me"
	RememberMeTimeout int64 // seconds, default: 31536000 (1 year)

	// ClockSkewGracePeriod is accepted on session expiry checks to absorb
	// small clock differences between replicas.
	ClockSkewGracePeriod int64 // seconds, default: 5

	// AllowPublicClientsWithoutPKCE lets public clients run the
	// authorization code flow without a code_challenge.
	// WARNING: public clients cannot keep a secret; without PKCE an
	// intercepted code can be redeemed by anyone.
	// Default: false
	AllowPublicClientsWithoutPKCE bool

	// DisablePKCEPlain rejects the 'plain' code_challenge_method so only
	// S256 is accepted.
	// Default: false
	DisablePKCEPlain bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Default: 1
	TrustedProxyCount int

	// LogoutRedirectURL is where the default logout action sends the browser.
	// When empty logout answers 204 No Content.
	LogoutRedirectURL string
}

// SessionTTL returns the session lifetime for a login with or without
// "remember me".
func (c *Config) SessionTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return time.Duration(c.RememberMeTimeout) * time.Second
	}
	return time.Duration(c.SessionTimeout) * time.Second
}

// ClockSkew returns ClockSkewGracePeriod as a duration.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}

// applySecureDefaults fills unset values and warns about insecure options.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.DeviceCodeTTL <= 0 {
		config.DeviceCodeTTL = DefaultDeviceCodeTTL
	}
	if config.DeviceCodeInterval <= 0 {
		config.DeviceCodeInterval = DefaultDeviceCodeInterval
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}
	if config.RememberMeTimeout <= 0 {
		config.RememberMeTimeout = DefaultRememberMeTimeout
	}
	if config.ClockSkewGracePeriod <= 0 {
		config.ClockSkewGracePeriod = DefaultClockSkewGracePeriod
	}
	if config.TrustedProxyCount <= 0 {
		config.TrustedProxyCount = 1
	}
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.AllowPublicClientsWithoutPKCE {
		logger.Warn("SECURITY WARNING: public clients may skip PKCE",
			"risk", "Authorization code interception attacks",
			"recommendation", "Leave AllowPublicClientsWithoutPKCE=false")
	}
	if config.TrustProxy {
		logger.Warn("SECURITY WARNING: trusting proxy headers for client IPs",
			"risk", "Clients can spoof X-Forwarded-For and evade rate limits",
			"recommendation", "Only enable behind a reverse proxy that overwrites these headers",
			"trusted_proxy_count", config.TrustedProxyCount)
	}
	if config.Issuer != "" && !isSecureIssuer(config.Issuer) {
		logger.Warn("SECURITY WARNING: issuer is not served over HTTPS",
			"issuer", config.Issuer,
			"risk", "Tokens and credentials travel in clear text",
			"recommendation", "Use an https:// issuer outside local development")
	}
}
