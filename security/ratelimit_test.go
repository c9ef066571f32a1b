package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("separate key was throttled")
	}
}

func TestRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	rl := NewRateLimiterWithConfig(1, 1, 2, nil)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("a")
	rl.Allow("c")

	if got := rl.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	// "b" was evicted, so it starts with a fresh bucket.
	if !rl.Allow("b") {
		t.Error("evicted key did not get a fresh bucket")
	}
	if rl.Allow("c") {
		t.Error("retained key lost its state")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	rl.Cleanup(time.Hour)
	if got := rl.Len(); got != 5 {
		t.Errorf("Len() after Cleanup(1h) = %d, want 5", got)
	}

	time.Sleep(10 * time.Millisecond)
	rl.Cleanup(time.Millisecond)
	if got := rl.Len(); got != 0 {
		t.Errorf("Len() after Cleanup(1ms) = %d, want 0", got)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
