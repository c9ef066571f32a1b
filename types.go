package oauth

import (
	"github.com/giantswarm/oauth-engine/server"
)

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// Wire types answered by the endpoints.
type (
	TokenResponse               = server.TokenResponse
	IntrospectionResponse       = server.IntrospectionResponse
	DeviceAuthorizationResponse = server.DeviceAuthorizationResponse
	DiscoveryDocument           = server.DiscoveryDocument
	UserInfo                    = server.UserInfo
)
