package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", now.Add(time.Second), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiresAt, now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpiresIn(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := ExpiresIn(now.Add(1200*time.Second), now); got != 1200 {
		t.Errorf("ExpiresIn() = %d, want 1200", got)
	}
	if got := ExpiresIn(now.Add(-time.Minute), now); got != 0 {
		t.Errorf("ExpiresIn(past) = %d, want 0", got)
	}
}
