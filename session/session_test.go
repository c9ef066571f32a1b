package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/security"
)

func newTestCookieStore(t *testing.T) *CookieStore {
	t.Helper()
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewCookieStore(CookieConfig{Key: key, Secure: true})
	if err != nil {
		t.Fatalf("NewCookieStore() error = %v", err)
	}
	return s
}

// replay builds a request carrying the cookies set on rec.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestCookieStore_RoundTrip(t *testing.T) {
	s := newTestCookieStore(t)

	rec := httptest.NewRecorder()
	if err := s.Set(rec, httptest.NewRequest(http.MethodGet, "/", nil), KeyOriginalURL, "/oauth/authorize?client_id=x"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes = %+v", c)
	}
	if strings.Contains(c.Value, "authorize") {
		t.Error("cookie value is not sealed")
	}

	got, ok := s.Get(replay(rec), KeyOriginalURL)
	if !ok || got != "/oauth/authorize?client_id=x" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
}

func TestCookieStore_RejectsForeignCookies(t *testing.T) {
	s := newTestCookieStore(t)
	other := newTestCookieStore(t)

	rec := httptest.NewRecorder()
	_ = other.Set(rec, nil, KeyUserSession, `{"user_id":"admin"}`)
	if _, ok := s.Get(replay(rec), KeyUserSession); ok {
		t.Error("Get() accepted a cookie sealed with another key")
	}

	tests := []struct {
		name  string
		value string
	}{
		{name: "garbage", value: "not-a-sealed-value"},
		{name: "empty", value: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: KeyUserSession, Value: tt.value})
			if _, ok := s.Get(r, KeyUserSession); ok {
				t.Error("Get() accepted an invalid cookie")
			}
		})
	}
}

func TestCookieStore_SwappedNames(t *testing.T) {
	s := newTestCookieStore(t)

	rec := httptest.NewRecorder()
	_ = s.Set(rec, nil, KeyOriginalURL, "https://evil.example.com")
	sealed := rec.Result().Cookies()[0].Value

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: KeyUserSession, Value: sealed})
	if _, ok := s.Get(r, KeyUserSession); ok {
		t.Error("a value sealed for one key opened under another")
	}
}

func TestCookieStore_Delete(t *testing.T) {
	s := newTestCookieStore(t)

	rec := httptest.NewRecorder()
	s.Delete(rec, nil, KeyUserSession)
	c := rec.Result().Cookies()[0]
	if c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("deleted cookie = %+v, want MaxAge < 0 and empty value", c)
	}
}

func TestNewCookieStore(t *testing.T) {
	if _, err := NewCookieStore(CookieConfig{}); err != nil {
		t.Errorf("NewCookieStore() without key error = %v", err)
	}
	if _, err := NewCookieStore(CookieConfig{Key: []byte("short")}); err == nil {
		t.Error("NewCookieStore() with a short key should return error")
	}
}

func TestUserSession_LoadSave(t *testing.T) {
	s := newTestCookieStore(t)
	now := time.Now()

	tests := []struct {
		name   string
		sess   *UserSession
		wantOK bool
	}{
		{
			name:   "live",
			sess:   &UserSession{UserID: "u1", Username: "alice", ExpiresAt: now.Add(time.Hour)},
			wantOK: true,
		},
		{
			name: "expired",
			sess: &UserSession{UserID: "u1", Username: "alice", ExpiresAt: now.Add(-time.Second)},
		},
		{
			name: "expires now",
			sess: &UserSession{UserID: "u1", Username: "alice", ExpiresAt: now},
		},
		{
			name: "no user",
			sess: &UserSession{ExpiresAt: now.Add(time.Hour)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := SaveUser(s, rec, nil, tt.sess); err != nil {
				t.Fatal(err)
			}
			got, ok := LoadUser(s, replay(rec), now)
			if ok != tt.wantOK {
				t.Fatalf("LoadUser() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (got.UserID != tt.sess.UserID || got.Username != tt.sess.Username) {
				t.Errorf("LoadUser() = %+v", got)
			}
		})
	}
}

func TestLoadUser_NoCookie(t *testing.T) {
	s := newTestCookieStore(t)
	if _, ok := LoadUser(s, httptest.NewRequest(http.MethodGet, "/", nil), time.Now()); ok {
		t.Error("LoadUser() without cookie returned a session")
	}
}

func TestClear(t *testing.T) {
	s := newTestCookieStore(t)
	rec := httptest.NewRecorder()
	Clear(s, rec, nil)

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.MaxAge < 0
	}
	for _, key := range []string{KeyUserSession, KeyOriginalURL} {
		if !names[key] {
			t.Errorf("Clear() did not expire %s", key)
		}
	}
}

func TestOriginalURL(t *testing.T) {
	s := newTestCookieStore(t)
	if _, ok := OriginalURL(s, httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("OriginalURL() without cookie = true")
	}

	rec := httptest.NewRecorder()
	_ = SetOriginalURL(s, rec, nil, "/resume")
	if got, ok := OriginalURL(s, replay(rec)); !ok || got != "/resume" {
		t.Errorf("OriginalURL() = %q, %v", got, ok)
	}
}
