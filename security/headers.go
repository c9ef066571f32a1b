package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the headers every JSON endpoint returns. HSTS is
// only sent when serverURL is https.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
}

// SetPageSecurityHeaders is SetSecurityHeaders for the HTML pages (login,
// consent, device verification), which need inline styles and same-origin
// form posts.
func SetPageSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; style-src 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'")
}

func setCommonHeaders(w http.ResponseWriter, serverURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
