package oauth

import (
	"net/http"

	"github.com/giantswarm/oauth-engine/server"
	"github.com/giantswarm/oauth-engine/session"
)

// Consent form actions.
const (
	ConsentActionApprove = "approve"
	ConsentActionDeny    = "deny"
)

// ServeConsentForm handles GET /oauth/consent. When nothing needs
// approving the browser resumes the interrupted request right away.
func (h *Handler) ServeConsentForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireLogin(w, r)
	if !ok {
		return
	}

	client, err := h.server.GetClient(r.Context(), r.URL.Query().Get("client_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if client.ConsentRequired {
		needed, err := h.server.ConsentNeeded(r.Context(), sess.UserID, client, client.Scopes)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if needed {
			h.render(w, r, http.StatusOK, PageConsent, &PageData{
				Action:     server.PathConsent,
				ClientID:   client.ClientID,
				ClientName: client.ClientName,
				Scopes:     client.Scopes,
			})
			return
		}
	}
	h.resume(w, r)
}

// ServeConsent handles POST /oauth/consent.
func (h *Handler) ServeConsent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireLogin(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("Failed to parse request"))
		return
	}

	client, err := h.server.GetClient(r.Context(), r.PostFormValue("client_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clientIP := h.clientIP(r)

	switch r.PostFormValue("action") {
	case ConsentActionApprove:
		if err := h.server.GrantConsent(r.Context(), sess.UserID, client, clientIP); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.resume(w, r)
	case ConsentActionDeny:
		session.ClearOriginalURL(h.sessions, w, r)
		denied := h.server.DenyConsent(r.Context(), sess.UserID, client.ClientID, clientIP)
		h.render(w, r, denied.Status, PageConsentDenied, &PageData{
			ClientID:   client.ClientID,
			ClientName: client.ClientName,
		})
	default:
		h.writeError(w, r, ErrInvalidRequest("action must be approve or deny"))
	}
}
