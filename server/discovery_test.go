package server

import (
	"slices"
	"testing"
)

func TestDiscovery(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	doc := srv.Discovery(testIssuer + "/")

	if doc.Issuer != testIssuer+"/" {
		t.Errorf("Issuer = %q", doc.Issuer)
	}
	endpoints := map[string]string{
		"authorization": doc.AuthorizationEndpoint,
		"device":        doc.DeviceAuthorizationEndpoint,
		"token":         doc.TokenEndpoint,
		"userinfo":      doc.UserInfoEndpoint,
		"revocation":    doc.RevocationEndpoint,
		"introspection": doc.IntrospectionEndpoint,
		"jwks":          doc.JWKSURI,
	}
	want := map[string]string{
		"authorization": testIssuer + "/oauth/authorize",
		"device":        testIssuer + "/oauth/device_authorization",
		"token":         testIssuer + "/oauth/token",
		"userinfo":      testIssuer + "/oauth/userinfo",
		"revocation":    testIssuer + "/oauth/revoke",
		"introspection": testIssuer + "/oauth/introspect",
		"jwks":          testIssuer + "/.well-known/jwks.json",
	}
	for k, v := range want {
		if endpoints[k] != v {
			t.Errorf("%s endpoint = %q, want %q", k, endpoints[k], v)
		}
	}
	if len(doc.GrantTypesSupported) != 4 {
		t.Errorf("GrantTypesSupported = %v", doc.GrantTypesSupported)
	}
	if !slices.Equal(doc.CodeChallengeMethodsSupported, []string{"S256", "plain"}) {
		t.Errorf("CodeChallengeMethodsSupported = %v", doc.CodeChallengeMethodsSupported)
	}
	if !slices.Equal(doc.TokenEndpointAuthMethodsSupported, []string{"client_secret_basic", "client_secret_post", "none"}) {
		t.Errorf("TokenEndpointAuthMethodsSupported = %v", doc.TokenEndpointAuthMethodsSupported)
	}

	srv.Config.DisablePKCEPlain = true
	if got := srv.Discovery(testIssuer).CodeChallengeMethodsSupported; !slices.Equal(got, []string{"S256"}) {
		t.Errorf("methods with plain disabled = %v", got)
	}
}
