package server

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/internal/testutil"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/storage/memory"
	"github.com/giantswarm/oauth-engine/tokens"
)

const testIssuer = "https://auth.example.com"

// countingStore counts persisted tokens.
type countingStore struct {
	storage.Store
	accessSaves  int
	refreshSaves int
}

func (c *countingStore) SaveAccessToken(ctx context.Context, t *storage.AccessToken) error {
	c.accessSaves++
	return c.Store.SaveAccessToken(ctx, t)
}

func (c *countingStore) SaveRefreshToken(ctx context.Context, t *storage.RefreshToken) error {
	c.refreshSaves++
	return c.Store.SaveRefreshToken(ctx, t)
}

func testTokenIssuer(t *testing.T) *tokens.Issuer {
	t.Helper()
	issuer, err := tokens.NewIssuerFromKey(testutil.RSAKey(t), "test-kid")
	if err != nil {
		t.Fatalf("NewIssuerFromKey() error = %v", err)
	}
	return issuer
}

// setupTestServer returns a server over a seeded memory store sharing one
// mock clock with it.
func setupTestServer(t *testing.T) (*Server, *memory.Store, *testutil.MockTime) {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)
	testutil.Seed(t, store)

	clock := testutil.NewMockTime(time.Now())
	store.SetClock(clock.Now)

	srv, err := New(store, testTokenIssuer(t), &Config{Issuer: testIssuer}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.SetClock(clock.Now)
	return srv, store, clock
}

// wantOAuthError fails unless err is an *Error with the given code.
func wantOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	var oe *Error
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *Error with code %q", err, code)
	}
	if oe.Code != code {
		t.Fatalf("error code = %q (%s), want %q", oe.Code, oe.Description, code)
	}
}

func TestNew(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	srv, err := New(store, testTokenIssuer(t), &Config{Issuer: testIssuer}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Config.Issuer != testIssuer {
		t.Errorf("Issuer = %q, want %q", srv.Config.Issuer, testIssuer)
	}
	if srv.Logger == nil {
		t.Error("Logger should not be nil")
	}
}

func TestNew_WithLogger(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	logger := slog.Default()
	srv, err := New(store, testTokenIssuer(t), nil, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Logger != logger {
		t.Error("Logger should match provided logger")
	}
	if srv.Config == nil {
		t.Error("Config should not be nil when nil is passed")
	}
}

func TestNew_Validation(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	issuer := testTokenIssuer(t)

	tests := []struct {
		name   string
		store  storage.Store
		issuer *tokens.Issuer
		config *Config
	}{
		{name: "missing store", issuer: issuer},
		{name: "missing issuer", store: store},
		{name: "issuer scheme", store: store, issuer: issuer, config: &Config{Issuer: "ftp://auth.example.com"}},
		{name: "issuer without host", store: store, issuer: issuer, config: &Config{Issuer: "https://"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.store, tt.issuer, tt.config, nil); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestGetClient(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	if _, err := srv.GetClient(ctx, ""); err == nil {
		t.Error("GetClient(\"\") succeeded")
	} else {
		wantOAuthError(t, err, ErrorCodeInvalidRequest)
	}
	_, err := srv.GetClient(ctx, "nope")
	wantOAuthError(t, err, ErrorCodeInvalidClient)

	c, err := srv.GetClient(ctx, testutil.DefaultClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if c.ClientID != testutil.DefaultClientID {
		t.Errorf("ClientID = %q", c.ClientID)
	}
}

func TestResolveUser_Inactive(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()

	u := testutil.User(t)
	u.Active = false
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}
	if _, err := srv.ResolveUser(ctx, u.ID); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("ResolveUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestAsError(t *testing.T) {
	oe := ErrInvalidGrant("x")
	if got := AsError(oe); got != oe {
		t.Errorf("AsError(*Error) = %v, want same value", got)
	}
	if got := AsError(errors.New("db down")); got.Code != ErrorCodeServerError || got.Status != 500 {
		t.Errorf("AsError(plain) = %+v, want server_error/500", got)
	}
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		err    *Error
		code   string
		status int
	}{
		{ErrInvalidRequest(""), ErrorCodeInvalidRequest, 400},
		{ErrInvalidClient(""), ErrorCodeInvalidClient, 401},
		{ErrInvalidGrant(""), ErrorCodeInvalidGrant, 400},
		{ErrUnauthorizedClient(""), ErrorCodeUnauthorizedClient, 400},
		{ErrUnsupportedGrantType(""), ErrorCodeUnsupportedGrantType, 400},
		{ErrInvalidScope(""), ErrorCodeInvalidScope, 400},
		{ErrInvalidToken(""), ErrorCodeInvalidToken, 401},
		{ErrAccessDenied(""), ErrorCodeAccessDenied, 403},
		{ErrAuthorizationPending(""), ErrorCodeAuthorizationPending, 400},
		{ErrExpiredToken(""), ErrorCodeExpiredToken, 400},
		{ErrServerError(""), ErrorCodeServerError, 500},
		{ErrRateLimitExceeded(""), ErrorCodeRateLimitExceeded, 429},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code || tt.err.Status != tt.status {
			t.Errorf("%s = %s/%d, want %s/%d", tt.code, tt.err.Code, tt.err.Status, tt.code, tt.status)
		}
	}
}
