package oauth

import (
	"net/http"

	"github.com/giantswarm/oauth-engine/session"
	"github.com/giantswarm/oauth-engine/storage"
)

// LoginOption lets the host add steps around the login, such as a second
// factor or tenant selection.
type LoginOption interface {
	// OnSuccessfulLogin runs after the credentials were accepted and the
	// session was written.
	OnSuccessfulLogin(w http.ResponseWriter, r *http.Request, user *storage.User) error

	// AfterLoginCheck runs before any step that needs a logged-in user.
	// Returning false means the hook has written the response itself and
	// will send the browser back to the original URL later.
	AfterLoginCheck(w http.ResponseWriter, r *http.Request, sess *session.UserSession) bool
}

// LogoutAction decides what the browser sees after logout.
type LogoutAction interface {
	AfterLogout(w http.ResponseWriter, r *http.Request, userID string)
}

// TemplateDataFunc returns host-specific values merged into PageData.Extra
// of every rendered page.
type TemplateDataFunc func(r *http.Request, page string) map[string]any

type defaultLoginOption struct{}

func (defaultLoginOption) OnSuccessfulLogin(http.ResponseWriter, *http.Request, *storage.User) error {
	return nil
}

func (defaultLoginOption) AfterLoginCheck(http.ResponseWriter, *http.Request, *session.UserSession) bool {
	return true
}

// redirectLogoutAction redirects to a fixed URL, or answers 204 when none is
// configured.
type redirectLogoutAction struct {
	url string
}

func (a redirectLogoutAction) AfterLogout(w http.ResponseWriter, r *http.Request, _ string) {
	if a.url == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, a.url, http.StatusFound)
}

// SetLoginOption replaces the login hook. nil restores the default, which
// always completes the login.
func (h *Handler) SetLoginOption(opt LoginOption) {
	if opt == nil {
		opt = defaultLoginOption{}
	}
	h.loginOption = opt
}

// SetLogoutAction replaces the post-logout hook. nil restores the default.
func (h *Handler) SetLogoutAction(action LogoutAction) {
	if action == nil {
		action = redirectLogoutAction{url: h.server.Config.LogoutRedirectURL}
	}
	h.logoutAction = action
}

// SetRenderer replaces the built-in pages. nil restores them.
func (h *Handler) SetRenderer(r Renderer) {
	if r == nil {
		r = DefaultRenderer()
	}
	h.renderer = r
}

// SetTemplateData registers a function adding host data to every page.
func (h *Handler) SetTemplateData(fn TemplateDataFunc) {
	h.templateData = fn
}
