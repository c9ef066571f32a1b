package server

import (
	"context"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/internal/testutil"
)

var serviceCreds = ClientCredentials{ClientID: testutil.ConfidentialClientID, ClientSecret: testutil.ConfidentialSecret}

func TestIntrospect(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()
	resp := confidentialTokens(t, srv, "openid email")

	got, err := srv.Introspect(ctx, serviceCreds, resp.AccessToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !got.Active || got.ClientID != testutil.ConfidentialClientID || got.Subject != testutil.UserID {
		t.Errorf("Introspect() = %+v", got)
	}
	if got.Scope != "openid email" || got.TokenType != "ACCESS_TOKEN" || got.ExpiresAt <= got.IssuedAt {
		t.Errorf("Introspect() = %+v", got)
	}

	got, err = srv.Introspect(ctx, serviceCreds, resp.RefreshToken)
	if err != nil || !got.Active || got.TokenType != "REFRESH_TOKEN" {
		t.Errorf("Introspect(refresh) = %+v, %v", got, err)
	}

	for _, token := range []string{"garbage", resp.IDToken} {
		got, err = srv.Introspect(ctx, serviceCreds, token)
		if err != nil || got.Active {
			t.Errorf("Introspect(%.10s) = %+v, %v; want inactive", token, got, err)
		}
	}
}

func TestIntrospect_ClientAuthentication(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	_, err := srv.Introspect(ctx, ClientCredentials{ClientID: testutil.DefaultClientID}, "x")
	wantOAuthError(t, err, ErrorCodeInvalidClient)

	_, err = srv.Introspect(ctx, ClientCredentials{ClientID: testutil.ConfidentialClientID, ClientSecret: "bad"}, "x")
	wantOAuthError(t, err, ErrorCodeInvalidClient)

	_, err = srv.Introspect(ctx, serviceCreds, "")
	wantOAuthError(t, err, ErrorCodeInvalidRequest)
}

func TestIntrospect_ExpiredRegardlessOfRevocation(t *testing.T) {
	srv, _, clock := setupTestServer(t)
	ctx := context.Background()
	resp := confidentialTokens(t, srv, "openid")

	clock.Advance(601 * time.Second)
	got, err := srv.Introspect(ctx, serviceCreds, resp.AccessToken)
	if err != nil || got.Active {
		t.Errorf("Introspect(expired) = %+v, %v; want inactive", got, err)
	}
	if got.ClientID != "" || got.Subject != "" {
		t.Errorf("inactive response leaks claims: %+v", got)
	}
}

func TestRevoke(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()
	resp := confidentialTokens(t, srv, "openid")

	if err := srv.Revoke(ctx, serviceCreds, resp.AccessToken); err != nil {
		t.Fatalf("Revoke(access) error = %v", err)
	}
	if err := srv.Revoke(ctx, serviceCreds, resp.RefreshToken); err != nil {
		t.Fatalf("Revoke(refresh) error = %v", err)
	}
	if err := srv.Revoke(ctx, serviceCreds, resp.AccessToken); err != nil {
		t.Errorf("second Revoke() error = %v, want idempotent success", err)
	}
	if err := srv.Revoke(ctx, serviceCreds, "unknown"); err != nil {
		t.Errorf("Revoke(unknown) error = %v", err)
	}

	at, _ := store.GetAccessToken(ctx, resp.AccessToken)
	rt, _ := store.GetRefreshToken(ctx, resp.RefreshToken)
	if !at.Revoked || !rt.Revoked {
		t.Errorf("revoked = %v/%v, want true/true", at.Revoked, rt.Revoked)
	}
	got, _ := srv.Introspect(ctx, serviceCreds, resp.AccessToken)
	if got.Active {
		t.Error("revoked token introspects active")
	}
}

func TestRevoke_ForeignClientIgnored(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()
	resp := confidentialTokens(t, srv, "openid")

	other := ClientCredentials{ClientID: testutil.ConsentClientID, ClientSecret: testutil.ConsentClientSecret}
	if err := srv.Revoke(ctx, other, resp.AccessToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	at, _ := store.GetAccessToken(ctx, resp.AccessToken)
	if at.Revoked {
		t.Error("another client revoked the token")
	}

	err := srv.Revoke(ctx, ClientCredentials{ClientID: testutil.ConfidentialClientID, ClientSecret: "bad"}, resp.AccessToken)
	wantOAuthError(t, err, ErrorCodeInvalidClient)
}
