package server

import (
	"context"
	"errors"
	"testing"

	"github.com/giantswarm/oauth-engine/internal/testutil"
	"github.com/giantswarm/oauth-engine/storage"
)

func TestLogin(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()

	inactive := testutil.User(t)
	inactive.ID, inactive.Username, inactive.Active = "user-2", "bob", false
	if err := store.SaveUser(ctx, inactive); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{"valid", testutil.UserName, testutil.UserPassword, false},
		{"wrong password", testutil.UserName, "queen", true},
		{"unknown user", "mallory", testutil.UserPassword, true},
		{"inactive user", "bob", testutil.UserPassword, true},
		{"empty password", testutil.UserName, "", true},
		{"empty username", "", testutil.UserPassword, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := srv.Login(ctx, tt.username, tt.password, "10.0.0.1")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if user.ID != testutil.UserID {
				t.Errorf("user = %q, want %q", user.ID, testutil.UserID)
			}
		})
	}
}

func TestLogin_CustomPasswordVerifier(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	srv.SetPasswordVerifier(PasswordVerifierFunc(func(u *storage.User, password string) bool {
		return password == "otp-"+u.Username
	}))
	if _, err := srv.Login(ctx, testutil.UserName, "otp-alice", ""); err != nil {
		t.Errorf("Login() with custom verifier error = %v", err)
	}
	if _, err := srv.Login(ctx, testutil.UserName, testutil.UserPassword, ""); err == nil {
		t.Error("bcrypt password accepted by custom verifier")
	}

	srv.SetPasswordVerifier(nil)
	if _, err := srv.Login(ctx, testutil.UserName, testutil.UserPassword, ""); err != nil {
		t.Errorf("Login() after reset error = %v", err)
	}
}

func TestLogin_VerifiesPasswordForEveryUser(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()

	inactive := testutil.User(t)
	inactive.ID, inactive.Username, inactive.Active = "user-2", "bob", false
	if err := store.SaveUser(ctx, inactive); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	var verified []string
	srv.SetPasswordVerifier(PasswordVerifierFunc(func(u *storage.User, password string) bool {
		verified = append(verified, u.Username)
		return BcryptPasswordVerifier(u, password)
	}))

	tests := []struct {
		name     string
		username string
	}{
		{"known user", testutil.UserName},
		{"unknown user", "mallory"},
		{"inactive user", "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verified = nil
			if _, err := srv.Login(ctx, tt.username, "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
			}
			if len(verified) != 1 || verified[0] != tt.username {
				t.Errorf("verified = %v, want one check for %q", verified, tt.username)
			}
		})
	}

	if placeholderHash() == "" {
		t.Error("placeholder hash is empty, unknown users skip the bcrypt comparison")
	}
	if _, err := srv.Login(ctx, "mallory", "placeholder-password", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() with the placeholder password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogout(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()

	service := confidentialTokens(t, srv, "openid")
	third := thirdPartyTokens(t, srv)
	device := startDeviceFlow(t, srv)
	if _, err := srv.AuthorizeDevice(ctx, device.UserCode, testutil.UserID, ""); err != nil {
		t.Fatalf("AuthorizeDevice() error = %v", err)
	}

	if err := srv.Logout(ctx, testutil.UserID, testutil.ConfidentialClientID, ""); err != nil {
		t.Fatalf("Logout(client) error = %v", err)
	}
	if _, err := store.GetAccessToken(ctx, service.AccessToken); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("service token survived client logout: %v", err)
	}
	if _, err := store.GetAccessToken(ctx, third.AccessToken); err != nil {
		t.Errorf("other client's token removed by client logout: %v", err)
	}

	if err := srv.Logout(ctx, testutil.UserID, "", ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := store.GetRefreshToken(ctx, third.RefreshToken); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("refresh token survived logout: %v", err)
	}
	if _, err := store.GetDeviceCode(ctx, device.DeviceCode); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("device code survived logout: %v", err)
	}
}

// thirdPartyTokens runs the code grant for the consent fixture client.
func thirdPartyTokens(t *testing.T, srv *Server) *TokenResponse {
	t.Helper()
	code := authorizeCode(t, srv, &AuthorizeRequest{
		ClientID:     testutil.ConsentClientID,
		RedirectURI:  testutil.ConsentRedirectURI,
		ResponseType: ResponseTypeCode,
		Scope:        "openid",
	})
	resp, err := srv.Token(context.Background(), &TokenRequest{
		GrantType:    storage.GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  testutil.ConsentRedirectURI,
		ClientID:     testutil.ConsentClientID,
		ClientSecret: testutil.ConsentClientSecret,
		Issuer:       testIssuer,
	})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	return resp
}
