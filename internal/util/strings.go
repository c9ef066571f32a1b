package util

import (
	"slices"
	"strings"
)

// SafeTruncate returns at most maxLen bytes of s. A negative maxLen yields "".
// Used when logging codes and tokens, where only a prefix may be shown.
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
//	SafeTruncate("short", 10)                  // "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// ParseScopes splits a space-delimited scope string, dropping empty entries
// and duplicates while keeping the first-seen order.
func ParseScopes(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// JoinScopes is the inverse of ParseScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopesSubset reports whether every entry of requested is present in allowed.
// An empty request is always a subset.
func ScopesSubset(requested, allowed []string) bool {
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

// HasScope reports whether scope is present in scopes.
func HasScope(scopes []string, scope string) bool {
	return slices.Contains(scopes, scope)
}
