package oauth

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/server"
)

// Router returns a router serving every endpoint at its well-known path.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts every endpoint on r. Routes are named after their
// endpoint, which is also the metrics label.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(security.RequestIDMiddleware)
	r.Use(h.metricsMiddleware)

	r.HandleFunc(server.PathAuthorize, h.ServeAuthorization).Methods(http.MethodGet).Name("authorize")
	r.HandleFunc(server.PathToken, h.ServeToken).Methods(http.MethodPost).Name("token")
	r.HandleFunc(server.PathIntrospect, h.ServeTokenIntrospection).Methods(http.MethodPost).Name("introspect")
	r.HandleFunc(server.PathRevoke, h.ServeTokenRevocation).Methods(http.MethodPost).Name("revoke")

	r.HandleFunc(server.PathDeviceAuthorization, h.ServeDeviceAuthorization).Methods(http.MethodPost).Name("device_authorization")
	r.HandleFunc(server.PathDeviceVerification, h.ServeDeviceVerificationForm).Methods(http.MethodGet).Name("device_verification_form")
	r.HandleFunc(server.PathDeviceVerification, h.ServeDeviceVerification).Methods(http.MethodPost).Name("device_verification")

	r.HandleFunc(server.PathConsent, h.ServeConsentForm).Methods(http.MethodGet).Name("consent_form")
	r.HandleFunc(server.PathConsent, h.ServeConsent).Methods(http.MethodPost).Name("consent")
	r.HandleFunc(server.PathLogin, h.ServeLoginForm).Methods(http.MethodGet).Name("login_form")
	r.HandleFunc(server.PathLogin, h.ServeLogin).Methods(http.MethodPost).Name("login")
	r.HandleFunc(server.PathLogout, h.ServeLogout).Methods(http.MethodGet).Name("logout")

	r.HandleFunc(server.PathUserInfo, h.ServeUserInfo).Methods(http.MethodGet, http.MethodPost).Name("userinfo")
	r.HandleFunc(server.PathDiscovery, h.ServeOpenIDConfiguration).Methods(http.MethodGet).Name("discovery")
	r.HandleFunc(server.PathJWKS, h.ServeJWKS).Methods(http.MethodGet).Name("jwks")
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.server.Instrumentation == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := "unknown"
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			endpoint = route.GetName()
		}

		ctx, span := h.tracer.Start(r.Context(), "oauth.http."+endpoint)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
		h.recordHTTPMetrics(r, endpoint, rec.status, start)
	})
}

func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, startTime time.Time) {
	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	h.server.Instrumentation.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, status, duration)
}
