package oauth

import (
	"errors"
	"net/http"

	"github.com/giantswarm/oauth-engine/server"
)

// ServeDeviceAuthorization handles POST /oauth/device_authorization (RFC 8628).
func (h *Handler) ServeDeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if h.rateLimited(w, r, "device_authorization") {
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

	resp, err := h.server.DeviceAuthorization(r.Context(), &server.DeviceAuthorizationRequest{
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		Scope:           r.PostFormValue("scope"),
		VerificationURI: h.issuerFor(r) + server.PathDeviceVerification,
		ClientIP:        h.clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeDeviceVerificationForm handles GET /oauth/device-verification.
func (h *Handler) ServeDeviceVerificationForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireLogin(w, r); !ok {
		return
	}
	h.render(w, r, http.StatusOK, PageDeviceVerification, &PageData{
		Action:   server.PathDeviceVerification,
		UserCode: r.URL.Query().Get("user_code"),
	})
}

// ServeDeviceVerification handles POST /oauth/device-verification: the
// logged-in user approves the device showing the entered code.
func (h *Handler) ServeDeviceVerification(w http.ResponseWriter, r *http.Request) {
	if h.rateLimited(w, r, "device_verification") {
		return
	}
	sess, ok := h.requireLogin(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("Failed to parse request"))
		return
	}

	userCode := r.PostFormValue("user_code")
	data := &PageData{Action: server.PathDeviceVerification, UserCode: userCode}

	if _, err := h.server.AuthorizeDevice(r.Context(), userCode, sess.UserID, h.clientIP(r)); err != nil {
		if errors.Is(err, server.ErrInvalidUserCode) {
			data.DeviceResult = DeviceResultInvalid
			h.render(w, r, http.StatusBadRequest, PageDeviceVerification, data)
			return
		}
		h.writeError(w, r, err)
		return
	}

	data.DeviceResult = DeviceResultApproved
	h.render(w, r, http.StatusOK, PageDeviceVerification, data)
}
