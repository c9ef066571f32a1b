package session

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/giantswarm/oauth-engine/security"
)

// DefaultCookieMaxAge covers the longest remember-me session (one year).
// The session record carries its own expiry.
const DefaultCookieMaxAge = 31536000

// CookieConfig configures a CookieStore.
type CookieConfig struct {
	// Key is the 32-byte AES key. When empty a random key is generated,
	// which invalidates every session on restart.
	Key []byte

	// Secure marks cookies Secure. Enable whenever the server is reached
	// over HTTPS.
	Secure bool

	// Path scopes the cookies (default "/").
	Path string

	// MaxAge in seconds (default DefaultCookieMaxAge).
	MaxAge int

	Logger *slog.Logger
}

// CookieStore keeps each session key in its own AES-GCM sealed cookie.
type CookieStore struct {
	enc    *security.Encryptor
	secure bool
	path   string
	maxAge int
	logger *slog.Logger
}

var _ Store = (*CookieStore)(nil)

// NewCookieStore creates a cookie-backed session store.
func NewCookieStore(cfg CookieConfig) (*CookieStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	key := cfg.Key
	if len(key) == 0 {
		var err error
		key, err = security.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
		logger.Warn("No session key configured, generated an ephemeral one; sessions will not survive a restart")
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}

	path := cfg.Path
	if path == "" {
		path = "/"
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}
	if !cfg.Secure {
		logger.Warn("Session cookies are not marked Secure; enable it for HTTPS deployments")
	}

	return &CookieStore{
		enc:    enc,
		secure: cfg.Secure,
		path:   path,
		maxAge: maxAge,
		logger: logger,
	}, nil
}

// Get opens the cookie named key.
func (c *CookieStore) Get(r *http.Request, key string) (string, bool) {
	cookie, err := r.Cookie(key)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	value, err := c.enc.Open(cookie.Value, key)
	if err != nil {
		c.logger.Debug("Discarding unreadable session cookie", "key", key, "error", err)
		return "", false
	}
	return value, true
}

// Set seals value into the cookie named key.
func (c *CookieStore) Set(w http.ResponseWriter, _ *http.Request, key, value string) error {
	sealed, err := c.enc.Seal(value, key)
	if err != nil {
		return fmt.Errorf("failed to seal session value: %w", err)
	}
	http.SetCookie(w, c.cookie(key, sealed, c.maxAge))
	return nil
}

// Delete expires the cookie named key.
func (c *CookieStore) Delete(w http.ResponseWriter, _ *http.Request, key string) {
	http.SetCookie(w, c.cookie(key, "", -1))
}

func (c *CookieStore) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
