package oauth

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/giantswarm/oauth-engine/server"
	"github.com/giantswarm/oauth-engine/session"
	"github.com/giantswarm/oauth-engine/storage"
)

// ServeAuthorization handles GET /oauth/authorize. Validation failures are
// answered as JSON and never redirected to the client.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	authz, err := h.server.ValidateAuthorizeRequest(ctx, &server.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Origin:              h.requestOrigin(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sess, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	if authz.Client.ConsentRequired {
		needed, err := h.server.ConsentNeeded(ctx, sess.UserID, authz.Client, authz.Scopes)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if needed {
			if err := session.SetOriginalURL(h.sessions, w, r, r.URL.RequestURI()); err != nil {
				h.writeError(w, r, err)
				return
			}
			http.Redirect(w, r, server.PathConsent+"?"+url.Values{"client_id": {authz.Client.ClientID}}.Encode(), http.StatusFound)
			return
		}
	}

	user, err := h.server.ResolveUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.Info("Session user no longer exists, asking for a new login", "user_id", sess.UserID)
			session.Clear(h.sessions, w, r)
			h.redirectToLogin(w, r)
			return
		}
		h.writeError(w, r, err)
		return
	}

	if err := h.saveSession(w, r, sess); err != nil {
		h.writeError(w, r, err)
		return
	}

	code, err := h.server.IssueAuthorizationCode(ctx, authz, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	target, err := server.CodeRedirectURL(authz.RedirectURI, code.Code, authz.State)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
