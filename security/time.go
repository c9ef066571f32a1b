package security

import "time"

// IsExpired reports whether expiresAt has been reached at now.
func IsExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// ExpiresIn returns the whole seconds left until expiresAt, never negative.
func ExpiresIn(expiresAt, now time.Time) int64 {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
