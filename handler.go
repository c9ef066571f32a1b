package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/server"
	"github.com/giantswarm/oauth-engine/session"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/tokens"
)

// fallbackRedirect is where a completed login lands when nothing was
// waiting for it.
const fallbackRedirect = "/"

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server   *Server
	sessions session.Store
	logger   *slog.Logger
	tracer   trace.Tracer // OpenTelemetry tracer for HTTP layer

	loginOption  LoginOption
	logoutAction LogoutAction
	renderer     Renderer
	templateData TemplateDataFunc
}

// NewHandler creates a new HTTP handler. sessions keeps the browser's login
// session and must not be nil.
func NewHandler(srv *Server, sessions session.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:   srv,
		sessions: sessions,
		logger:   logger,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
	}
	h.SetLoginOption(nil)
	h.SetLogoutAction(nil)
	h.SetRenderer(nil)

	// Initialize tracer if instrumentation is enabled
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// New builds the engine and its handler in one step. When sessions is nil an
// encrypted cookie store with an ephemeral key is used.
func New(store storage.Store, issuer *tokens.Issuer, sessions session.Store, cfg *Config) (*Handler, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	srv, err := NewServer(store, issuer, cfg)
	if err != nil {
		return nil, err
	}

	if sessions == nil {
		sessions, err = session.NewCookieStore(session.CookieConfig{
			Secure: strings.HasPrefix(srv.Config.Issuer, server.SchemeHTTPS+"://"),
			Logger: srv.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
	}

	return NewHandler(srv, sessions, srv.Logger), nil
}

// Server returns the protocol engine behind the handler.
func (h *Handler) Server() *Server {
	return h.server
}

// Close stops background work owned by the handler's engine.
func (h *Handler) Close() {
	if h.server.RateLimiter != nil {
		h.server.RateLimiter.Stop()
	}
}

// issuerFor returns the configured issuer, or the request's own origin when
// none is configured.
func (h *Handler) issuerFor(r *http.Request) string {
	if h.server.Config.Issuer != "" {
		return h.server.Config.Issuer
	}
	return h.requestOrigin(r)
}

// requestOrigin is scheme://host of the request as the user agent saw it.
// Forwarded headers are only honoured with TrustProxy.
func (h *Handler) requestOrigin(r *http.Request) string {
	scheme := server.SchemeHTTP
	if r.TLS != nil {
		scheme = server.SchemeHTTPS
	}
	host := r.Host

	if h.server.Config.TrustProxy {
		if proto := firstHeaderValue(r, "X-Forwarded-Proto"); proto == server.SchemeHTTP || proto == server.SchemeHTTPS {
			scheme = proto
		}
		if fwdHost := firstHeaderValue(r, "X-Forwarded-Host"); fwdHost != "" {
			host = fwdHost
		}
	}
	return scheme + "://" + host
}

func firstHeaderValue(r *http.Request, name string) string {
	v, _, _ := strings.Cut(r.Header.Get(name), ",")
	return strings.TrimSpace(v)
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// clientCredentials reads client authentication from HTTP Basic or, failing
// that, the form. Basic credentials are form-urlencoded (RFC 6749 2.3.1).
func clientCredentials(r *http.Request) (clientID, clientSecret string, err error) {
	formID := r.PostFormValue("client_id")

	basicID, basicSecret, ok := r.BasicAuth()
	if !ok {
		return formID, r.PostFormValue("client_secret"), nil
	}
	if id, uerr := url.QueryUnescape(basicID); uerr == nil {
		basicID = id
	}
	if secret, uerr := url.QueryUnescape(basicSecret); uerr == nil {
		basicSecret = secret
	}
	if formID != "" && formID != basicID {
		return "", "", ErrInvalidRequest("client_id does not match the authenticated client")
	}
	return basicID, basicSecret, nil
}

// writeError writes an OAuth JSON error. Errors that are not OAuth errors
// are answered as server_error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	oe := server.AsError(err)
	var known *OAuthError
	if !errors.As(err, &known) {
		h.logger.Error("Unexpected handler error",
			"path", r.URL.Path,
			"request_id", security.GetRequestID(r.Context()),
			"error", err)
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	if oe.Status == http.StatusUnauthorized {
		switch oe.Code {
		case ErrorCodeInvalidToken:
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q, error_description=%q`, oe.Code, oe.Description))
		case ErrorCodeInvalidClient:
			if _, _, ok := r.BasicAuth(); ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oe.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", "error", err)
	}
}

// render writes an HTML page through the configured renderer.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data *PageData) {
	if h.templateData != nil {
		data.Extra = h.templateData(r, page)
	}
	security.SetPageSecurityHeaders(w, h.server.Config.Issuer)
	if err := h.renderer.Render(w, r, status, page, data); err != nil {
		h.logger.Error("Failed to render page", "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// rateLimited answers 429 and returns true when the caller's IP is over its
// budget.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if h.server.RateLimiter == nil {
		return false
	}
	clientIP := h.clientIP(r)
	if h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	h.server.Auditor.LogRateLimitExceeded(clientIP, endpoint)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), endpoint)
	}
	w.Header().Set("Retry-After", "1")
	h.writeError(w, r, ErrRateLimitExceeded("too many requests"))
	return true
}

// loadSession returns the browser's live login session. ClockSkewGracePeriod
// is tolerated on expiry.
func (h *Handler) loadSession(r *http.Request) (*session.UserSession, bool) {
	now := h.server.Now().Add(-h.server.Config.ClockSkew())
	return session.LoadUser(h.sessions, r, now)
}

// saveSession (re)starts the session lifetime from now.
func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, sess *session.UserSession) error {
	sess.ExpiresAt = h.server.Now().Add(h.server.Config.SessionTTL(sess.RememberMe))
	return session.SaveUser(h.sessions, w, r, sess)
}

// redirectToLogin remembers where the browser was going and sends it to the
// login page.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	original := r.URL.RequestURI()
	if r.Method != http.MethodGet {
		original = getEquivalent(r)
	}
	if err := session.SetOriginalURL(h.sessions, w, r, original); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, server.PathLogin, http.StatusFound)
}

// getEquivalent maps an interrupted form post to the GET URL that shows the
// same form again.
func getEquivalent(r *http.Request) string {
	switch r.URL.Path {
	case server.PathConsent:
		return server.PathConsent + "?" + url.Values{"client_id": {r.PostFormValue("client_id")}}.Encode()
	case server.PathDeviceVerification:
		if code := r.PostFormValue("user_code"); code != "" {
			return server.PathDeviceVerification + "?" + url.Values{"user_code": {code}}.Encode()
		}
		return server.PathDeviceVerification
	default:
		return fallbackRedirect
	}
}

// requireLogin returns the session of a logged-in user who passed the
// login-option check. On false the response has been written.
func (h *Handler) requireLogin(w http.ResponseWriter, r *http.Request) (*session.UserSession, bool) {
	sess, ok := h.loadSession(r)
	if !ok {
		h.redirectToLogin(w, r)
		return nil, false
	}
	if !h.loginOption.AfterLoginCheck(w, r, sess) {
		return nil, false
	}
	return sess, true
}

// resume sends the browser back to the URL that was interrupted by login or
// consent, or to fallbackRedirect.
func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	target := fallbackRedirect
	if original, ok := session.OriginalURL(h.sessions, r); ok && isLocalPath(original) {
		target = original
	}
	session.ClearOriginalURL(h.sessions, w, r)
	http.Redirect(w, r, target, http.StatusFound)
}

// isLocalPath accepts only same-origin absolute paths so a stored URL can
// never become an open redirect.
func isLocalPath(u string) bool {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, `/\`) {
		return false
	}
	parsed, err := url.Parse(u)
	return err == nil && parsed.Scheme == "" && parsed.Host == ""
}
