package server

import (
	"strings"

	"github.com/giantswarm/oauth-engine/storage"
)

// Endpoint paths relative to the issuer.
const (
	PathAuthorize           = "/oauth/authorize"
	PathToken               = "/oauth/token"
	PathIntrospect          = "/oauth/introspect"
	PathRevoke              = "/oauth/revoke"
	PathDeviceAuthorization = "/oauth/device_authorization"
	PathDeviceVerification  = "/oauth/device-verification"
	PathConsent             = "/oauth/consent"
	PathLogin               = "/oauth/login"
	PathLogout              = "/oauth/logout"
	PathUserInfo            = "/oauth/userinfo"
	PathDiscovery           = "/.well-known/openid-configuration"
	PathJWKS                = "/.well-known/jwks.json"
)

// DiscoveryDocument is the OpenID Provider Metadata document.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// Discovery builds the metadata document for issuer.
func (s *Server) Discovery(issuer string) *DiscoveryDocument {
	base := strings.TrimSuffix(issuer, "/")
	methods := []string{PKCEMethodS256, PKCEMethodPlain}
	if s.Config.DisablePKCEPlain {
		methods = []string{PKCEMethodS256}
	}
	return &DiscoveryDocument{
		Issuer:                      issuer,
		AuthorizationEndpoint:       base + PathAuthorize,
		DeviceAuthorizationEndpoint: base + PathDeviceAuthorization,
		TokenEndpoint:               base + PathToken,
		UserInfoEndpoint:            base + PathUserInfo,
		RevocationEndpoint:          base + PathRevoke,
		IntrospectionEndpoint:       base + PathIntrospect,
		JWKSURI:                     base + PathJWKS,
		ResponseTypesSupported:      []string{ResponseTypeCode},
		GrantTypesSupported: []string{
			storage.GrantTypeAuthorizationCode,
			storage.GrantTypeClientCredentials,
			storage.GrantTypeRefreshToken,
			storage.GrantTypeDeviceCode,
		},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		ScopesSupported:                   []string{"openid", "profile", "email"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     methods,
	}
}
