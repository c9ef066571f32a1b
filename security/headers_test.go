package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		wantHSTS  bool
	}{
		{"HTTPS server", "https://example.com", true},
		{"HTTP server", "http://example.com", false},
		{"invalid URL", "://invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SetSecurityHeaders(w, tt.serverURL)

			if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
			}
			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
			}
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
			if got := w.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
				t.Errorf("Content-Security-Policy = %q", got)
			}
			hsts := w.Header().Get("Strict-Transport-Security")
			if (hsts != "") != tt.wantHSTS {
				t.Errorf("HSTS = %q, want present = %v", hsts, tt.wantHSTS)
			}
		})
	}
}

func TestSetPageSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetPageSecurityHeaders(w, "https://auth.example.com")

	csp := w.Header().Get("Content-Security-Policy")
	for _, want := range []string{"form-action 'self'", "frame-ancestors 'none'", "style-src 'unsafe-inline'"} {
		if !strings.Contains(csp, want) {
			t.Errorf("Content-Security-Policy = %q, missing %q", csp, want)
		}
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("page headers missing X-Frame-Options")
	}
}
