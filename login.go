package oauth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/giantswarm/oauth-engine/server"
	"github.com/giantswarm/oauth-engine/session"
)

// ServeLoginForm handles GET /oauth/login. A browser that is already logged
// in has its session extended and continues where it was interrupted.
func (h *Handler) ServeLoginForm(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.loadSession(r); ok {
		if err := h.saveSession(w, r, sess); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.resume(w, r)
		return
	}
	h.render(w, r, http.StatusOK, PageLogin, &PageData{Action: server.PathLogin})
}

// ServeLogin handles POST /oauth/login.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if h.rateLimited(w, r, "login") {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("Failed to parse request"))
		return
	}

	username := r.PostFormValue("username")
	rememberMe := parseCheckbox(r.PostFormValue("rememberMe"))

	user, err := h.server.Login(r.Context(), username, r.PostFormValue("password"), h.clientIP(r))
	if err != nil {
		if errors.Is(err, server.ErrInvalidCredentials) {
			h.render(w, r, http.StatusUnauthorized, PageLogin, &PageData{
				Action:       server.PathLogin,
				Username:     username,
				RememberMe:   rememberMe,
				InvalidLogin: true,
			})
			return
		}
		h.writeError(w, r, err)
		return
	}

	sess := &session.UserSession{
		UserID:     user.ID,
		Username:   user.Username,
		RememberMe: rememberMe,
	}
	if err := h.saveSession(w, r, sess); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.loginOption.OnSuccessfulLogin(w, r, user); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.loginOption.AfterLoginCheck(w, r, sess) {
		return
	}
	h.resume(w, r)
}

// ServeLogout handles GET /oauth/logout. With a session, the user's codes,
// tokens and device codes are deleted (only those of client_id when given).
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	var userID string
	if sess, ok := h.loadSession(r); ok {
		userID = sess.UserID
		clientID := r.URL.Query().Get("client_id")
		if err := h.server.Logout(r.Context(), userID, clientID, h.clientIP(r)); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	session.Clear(h.sessions, w, r)
	h.logoutAction.AfterLogout(w, r, userID)
}

func parseCheckbox(v string) bool {
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
