package valkey

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/internal/testutil"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/storage/storagetest"
)

// testStore creates a test store connected to a local Valkey instance.
// Tests are skipped when no server answers at VALKEY_TEST_ADDR
// (default localhost:6379). Each test gets a unique prefix.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("oauthtest:%s:", t.Name())

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all test keys from Valkey
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	pattern := s.prefix + "*"

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}

		for _, key := range result.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build())
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
}

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return testStore(t)
	})
}

func TestNew_EmptyAddress(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty address should return error")
	}
}

func TestStore_KeysHashTokens(t *testing.T) {
	s := &Store{prefix: "p:"}

	for name, key := range map[string]string{
		"code":    s.codeKey("secret-value"),
		"access":  s.accessKey("secret-value"),
		"refresh": s.refreshKey("secret-value"),
	} {
		if strings.Contains(key, "secret-value") {
			t.Errorf("%s key %q contains the raw value", name, key)
		}
		if !strings.HasSuffix(key, security.HashToken("secret-value")) {
			t.Errorf("%s key %q does not end with the token hash", name, key)
		}
	}
}

func TestStore_TTLFor(t *testing.T) {
	now := time.Now()
	s := &Store{retention: time.Minute, now: func() time.Time { return now }}

	tests := []struct {
		name      string
		expiresAt time.Time
		want      time.Duration
	}{
		{name: "future", expiresAt: now.Add(time.Hour), want: time.Hour + time.Minute},
		{name: "just expired", expiresAt: now.Add(-30 * time.Second), want: 30 * time.Second},
		{name: "long expired", expiresAt: now.Add(-time.Hour), want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ttlFor(tt.expiresAt); got != tt.want {
				t.Errorf("ttlFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_DefaultClientPointer(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	client := testutil.DefaultClient()
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatal(err)
	}
	if got, err := s.GetDefaultClient(ctx); err != nil || got.ClientID != client.ClientID {
		t.Fatalf("GetDefaultClient() = %v, %v", got, err)
	}

	client.IsDefault = false
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDefaultClient(ctx); err == nil {
		t.Error("GetDefaultClient() still resolves after the flag was cleared")
	}
}

func TestStore_EncryptionAtRest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	key, err := security.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatal(err)
	}
	s.SetEncryptor(enc)

	user := testutil.User(t)
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatal(err)
	}

	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.userKey(user.ID)).Build()).ToString()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(raw, user.Email) {
		t.Error("stored user payload is not encrypted")
	}

	got, err := s.GetUserByUsername(ctx, user.Username)
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.Email != user.Email {
		t.Errorf("Email = %q, want %q", got.Email, user.Email)
	}
}

func TestStore_ExpiredCodeStillDistinguishable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.SaveDeviceCode(ctx, &storage.DeviceCode{
		DeviceCode: "expired-device",
		UserCode:   "BBBB-CCCC",
		ClientID:   testutil.DeviceClientID,
		ExpiresAt:  time.Now().Add(-time.Second),
		Interval:   5,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDeviceCode(ctx, "expired-device")
	if err != nil {
		t.Fatalf("GetDeviceCode() on expired code error = %v", err)
	}
	if got.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want past", got.ExpiresAt)
	}
}
