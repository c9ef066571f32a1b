package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		proxyCount int
		want       string
	}{
		{"remote addr only", "192.0.2.1:1234", "", "", false, 0, "192.0.2.1"},
		{"untrusted XFF ignored", "192.0.2.1:1234", "203.0.113.9", "", false, 0, "192.0.2.1"},
		{"single proxy", "10.0.0.1:1234", "203.0.113.9, 10.0.0.1", "", true, 1, "203.0.113.9"},
		{"zero count treated as one", "10.0.0.1:1234", "203.0.113.9, 10.0.0.1", "", true, 0, "203.0.113.9"},
		{"two proxies", "10.0.0.2:1234", "203.0.113.9, 10.0.0.1, 10.0.0.2", "", true, 2, "203.0.113.9"},
		{"spoofed prefix skipped", "10.0.0.1:1234", "1.1.1.1, 203.0.113.9, 10.0.0.1", "", true, 1, "203.0.113.9"},
		{"more proxies than entries", "10.0.0.1:1234", "203.0.113.9", "", true, 3, "203.0.113.9"},
		{"invalid XFF falls back to X-Real-IP", "10.0.0.1:1234", "garbage, x", "198.51.100.7", true, 1, "198.51.100.7"},
		{"invalid headers fall back to remote", "10.0.0.1:1234", "garbage, x", "nope", true, 1, "10.0.0.1"},
		{"remote addr without port", "192.0.2.1", "", "", false, 0, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := GetClientIP(r, tt.trustProxy, tt.proxyCount); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
