package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Session keys.
const (
	KeyUserSession = "OAUTH_USER_SESSION"
	KeyOriginalURL = "OAUTH_ORIGINAL_URL"
)

// Store is an opaque per-user-agent key/value store.
type Store interface {
	// Get returns the value of key, or false when absent or unreadable.
	Get(r *http.Request, key string) (string, bool)

	// Set stores value under key.
	Set(w http.ResponseWriter, r *http.Request, key, value string) error

	// Delete removes key.
	Delete(w http.ResponseWriter, r *http.Request, key string)
}

// UserSession is the record kept under KeyUserSession.
type UserSession struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	ExpiresAt  time.Time `json:"expires_at"`
	RememberMe bool      `json:"remember_me"`
}

// Expired reports whether the session is no longer valid at now.
func (s *UserSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoadUser returns the live user session, if any. Expired or malformed
// sessions are reported as absent.
func LoadUser(store Store, r *http.Request, now time.Time) (*UserSession, bool) {
	raw, ok := store.Get(r, KeyUserSession)
	if !ok || raw == "" {
		return nil, false
	}
	var sess UserSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, false
	}
	if sess.UserID == "" || sess.Expired(now) {
		return nil, false
	}
	return &sess, true
}

// SaveUser writes sess under KeyUserSession.
func SaveUser(store Store, w http.ResponseWriter, r *http.Request, sess *UserSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal user session: %w", err)
	}
	return store.Set(w, r, KeyUserSession, string(data))
}

// OriginalURL returns the URL to resume after login or consent.
func OriginalURL(store Store, r *http.Request) (string, bool) {
	u, ok := store.Get(r, KeyOriginalURL)
	return u, ok && u != ""
}

// SetOriginalURL remembers the URL to resume.
func SetOriginalURL(store Store, w http.ResponseWriter, r *http.Request, u string) error {
	return store.Set(w, r, KeyOriginalURL, u)
}

// ClearOriginalURL forgets the URL to resume.
func ClearOriginalURL(store Store, w http.ResponseWriter, r *http.Request) {
	store.Delete(w, r, KeyOriginalURL)
}

// Clear removes the user session and the original URL.
func Clear(store Store, w http.ResponseWriter, r *http.Request) {
	store.Delete(w, r, KeyUserSession)
	store.Delete(w, r, KeyOriginalURL)
}
