package oauth

import (
	"net/http"

	"github.com/giantswarm/oauth-engine/server"
)

// ServeToken handles POST /oauth/token for every supported grant.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if h.rateLimited(w, r, "token") {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("Failed to parse request"))
		return
	}
	clientID, clientSecret, err := clientCredentials(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.server.Token(r.Context(), &server.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		DeviceCode:   r.PostFormValue("device_code"),
		Scope:        r.PostFormValue("scope"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Issuer:       h.issuerFor(r),
		ClientIP:     h.clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeTokenIntrospection handles POST /oauth/introspect (RFC 7662).
func (h *Handler) ServeTokenIntrospection(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.parseClientRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.server.Introspect(r.Context(), creds, r.PostFormValue("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeTokenRevocation handles POST /oauth/revoke (RFC 7009). Unknown tokens
// are answered with success.
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.parseClientRequest(w, r)
	if !ok {
		return
	}
	if err := h.server.Revoke(r.Context(), creds, r.PostFormValue("token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) parseClientRequest(w http.ResponseWriter, r *http.Request) (server.ClientCredentials, bool) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("Failed to parse request"))
		return server.ClientCredentials{}, false
	}
	clientID, clientSecret, err := clientCredentials(r)
	if err != nil {
		h.writeError(w, r, err)
		return server.ClientCredentials{}, false
	}
	return server.ClientCredentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		ClientIP:     h.clientIP(r),
	}, true
}
