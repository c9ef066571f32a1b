package oauth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/giantswarm/oauth-engine/server"
)

// ServeUserInfo handles GET and POST /oauth/userinfo.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.server.UserInfo(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, server.ErrUserGone) {
			h.writeError(w, r, NewOAuthError(ErrorCodeNotFound, "user not found", http.StatusNotFound))
			return
		}
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// ServeOpenIDConfiguration handles GET /.well-known/openid-configuration.
func (h *Handler) ServeOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.server.Discovery(h.issuerFor(r)))
}

// ServeJWKS handles GET /.well-known/jwks.json.
func (h *Handler) ServeJWKS(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.server.Issuer().PublicJWKSet())
}

// bearerToken extracts the RFC 6750 bearer token from the Authorization
// header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
