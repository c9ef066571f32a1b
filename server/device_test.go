package server

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/internal/testutil"
	"github.com/giantswarm/oauth-engine/storage"
)

const testVerificationURI = testIssuer + PathDeviceVerification

func startDeviceFlow(t *testing.T, srv *Server) *DeviceAuthorizationResponse {
	t.Helper()
	resp, err := srv.DeviceAuthorization(context.Background(), &DeviceAuthorizationRequest{
		ClientID:        testutil.DeviceClientID,
		Scope:           "openid profile",
		VerificationURI: testVerificationURI,
	})
	if err != nil {
		t.Fatalf("DeviceAuthorization() error = %v", err)
	}
	return resp
}

func devicePoll(deviceCode string) *TokenRequest {
	return &TokenRequest{
		GrantType:  storage.GrantTypeDeviceCode,
		DeviceCode: deviceCode,
		ClientID:   testutil.DeviceClientID,
		Issuer:     testIssuer,
	}
}

func TestDeviceAuthorization_Response(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	resp := startDeviceFlow(t, srv)

	if resp.ExpiresIn != 1200 || resp.Interval != 5 {
		t.Errorf("ExpiresIn/Interval = %d/%d, want 1200/5", resp.ExpiresIn, resp.Interval)
	}
	if resp.VerificationURI != testVerificationURI {
		t.Errorf("VerificationURI = %q", resp.VerificationURI)
	}
	u, err := url.Parse(resp.VerificationURIComplete)
	if err != nil || u.Query().Get("user_code") != resp.UserCode {
		t.Errorf("VerificationURIComplete = %q", resp.VerificationURIComplete)
	}

	stored, err := store.GetDeviceCode(context.Background(), resp.DeviceCode)
	if err != nil {
		t.Fatalf("GetDeviceCode() error = %v", err)
	}
	if stored.UserCode != resp.UserCode || !stored.IsPending() {
		t.Errorf("stored = %+v", stored)
	}
}

func TestDeviceAuthorization_Failures(t *testing.T) {
	tests := []struct {
		name     string
		req      *DeviceAuthorizationRequest
		wantCode string
	}{
		{"missing client", &DeviceAuthorizationRequest{Scope: "openid"}, ErrorCodeInvalidRequest},
		{"missing scope", &DeviceAuthorizationRequest{ClientID: testutil.DeviceClientID}, ErrorCodeInvalidRequest},
		{"unknown client", &DeviceAuthorizationRequest{ClientID: "ghost", Scope: "openid"}, ErrorCodeInvalidClient},
		{"grant not allowed", &DeviceAuthorizationRequest{ClientID: testutil.DefaultClientID, Scope: "openid"}, ErrorCodeUnauthorizedClient},
		{"confidential without secret", &DeviceAuthorizationRequest{ClientID: testutil.ConfidentialClientID, Scope: "openid"}, ErrorCodeInvalidClient},
		{"scope escalation", &DeviceAuthorizationRequest{ClientID: testutil.DeviceClientID, Scope: "openid email"}, ErrorCodeInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := setupTestServer(t)
			_, err := srv.DeviceAuthorization(context.Background(), tt.req)
			wantOAuthError(t, err, tt.wantCode)
		})
	}
}

func TestDeviceFlow_PendingThenIssuedOnce(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()
	resp := startDeviceFlow(t, srv)

	_, err := srv.Token(ctx, devicePoll(resp.DeviceCode))
	wantOAuthError(t, err, ErrorCodeAuthorizationPending)

	approved, err := srv.AuthorizeDevice(ctx, "  "+resp.UserCode[:4]+" "+resp.UserCode[5:], testutil.UserID, "")
	if err != nil {
		t.Fatalf("AuthorizeDevice() error = %v", err)
	}
	if approved.ClientID != testutil.DeviceClientID || approved.UserID != testutil.UserID {
		t.Errorf("approved = %+v", approved)
	}

	tok, err := srv.Token(ctx, devicePoll(resp.DeviceCode))
	if err != nil {
		t.Fatalf("Token() after approval error = %v", err)
	}
	if tok.AccessToken == "" || tok.IDToken == "" || tok.RefreshToken == "" {
		t.Errorf("device tokens = %+v, want access, ID and refresh token", tok)
	}

	_, err = srv.Token(ctx, devicePoll(resp.DeviceCode))
	wantOAuthError(t, err, ErrorCodeInvalidGrant)
}

func TestDeviceFlow_Expired(t *testing.T) {
	srv, _, clock := setupTestServer(t)
	ctx := context.Background()
	resp := startDeviceFlow(t, srv)

	clock.Advance(1201 * time.Second)

	_, err := srv.Token(ctx, devicePoll(resp.DeviceCode))
	wantOAuthError(t, err, ErrorCodeExpiredToken)

	if _, err := srv.AuthorizeDevice(ctx, resp.UserCode, testutil.UserID, ""); !errors.Is(err, ErrInvalidUserCode) {
		t.Errorf("AuthorizeDevice(expired) error = %v, want ErrInvalidUserCode", err)
	}
}

func TestDeviceFlow_ForeignAndUnknownCodes(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()
	resp := startDeviceFlow(t, srv)

	_, err := srv.Token(ctx, devicePoll("unknown"))
	wantOAuthError(t, err, ErrorCodeInvalidGrant)

	other := testutil.DeviceClient()
	other.ClientID = "other-tv"
	if err := store.SaveClient(ctx, other); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	req := devicePoll(resp.DeviceCode)
	req.ClientID = other.ClientID
	_, err = srv.Token(ctx, req)
	wantOAuthError(t, err, ErrorCodeInvalidGrant)

	_, err = srv.Token(ctx, &TokenRequest{GrantType: storage.GrantTypeDeviceCode, ClientID: testutil.DeviceClientID})
	wantOAuthError(t, err, ErrorCodeInvalidRequest)
}

func TestAuthorizeDevice_Twice(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()
	resp := startDeviceFlow(t, srv)

	if _, err := srv.AuthorizeDevice(ctx, resp.UserCode, testutil.UserID, ""); err != nil {
		t.Fatalf("AuthorizeDevice() error = %v", err)
	}
	if _, err := srv.AuthorizeDevice(ctx, resp.UserCode, testutil.UserID, ""); !errors.Is(err, ErrInvalidUserCode) {
		t.Errorf("second AuthorizeDevice() error = %v, want ErrInvalidUserCode", err)
	}
	if _, err := srv.LookupUserCode(ctx, "short"); !errors.Is(err, ErrInvalidUserCode) {
		t.Errorf("LookupUserCode(short) error = %v", err)
	}
}
