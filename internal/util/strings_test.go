package util

import (
	"slices"
	"testing"
)

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than limit", "short", 10, "short"},
		{"exact length", "12345678", 8, "12345678"},
		{"longer than limit", "very-long-token-abc123", 8, "very-lon"},
		{"zero length", "abc", 0, ""},
		{"negative length", "abc", -1, ""},
		{"empty input", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestParseScopes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"single", "openid", []string{"openid"}},
		{"multiple", "openid profile email", []string{"openid", "profile", "email"}},
		{"extra spaces", "  openid   email ", []string{"openid", "email"}},
		{"duplicates", "openid openid email", []string{"openid", "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseScopes(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseScopes(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestJoinScopes(t *testing.T) {
	if got := JoinScopes([]string{"openid", "email"}); got != "openid email" {
		t.Errorf("JoinScopes() = %q, want %q", got, "openid email")
	}
	if got := JoinScopes(nil); got != "" {
		t.Errorf("JoinScopes(nil) = %q, want empty", got)
	}
}

func TestScopesSubset(t *testing.T) {
	allowed := []string{"openid", "profile", "email"}
	tests := []struct {
		name      string
		requested []string
		want      bool
	}{
		{"empty request", nil, true},
		{"single allowed", []string{"openid"}, true},
		{"all allowed", []string{"email", "openid", "profile"}, true},
		{"one unknown", []string{"openid", "admin"}, false},
		{"only unknown", []string{"admin"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopesSubset(tt.requested, allowed); got != tt.want {
				t.Errorf("ScopesSubset(%v) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}

func TestHasScope(t *testing.T) {
	if !HasScope([]string{"openid", "email"}, "email") {
		t.Error("HasScope() = false, want true")
	}
	if HasScope([]string{"openid"}, "profile") {
		t.Error("HasScope() = true, want false")
	}
}
