package memory

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/internal/testutil"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/storage/storagetest"
)

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := New()
		t.Cleanup(s.Stop)
		return s
	})
}

func TestStore_SaveClient_Invalid(t *testing.T) {
	store := New()
	defer store.Stop()

	if err := store.SaveClient(context.Background(), nil); err == nil {
		t.Error("SaveClient(nil) should return error")
	}
	if err := store.SaveClient(context.Background(), &storage.Client{}); err == nil {
		t.Error("SaveClient() with empty ID should return error")
	}
}

func TestStore_GetClient_ReturnsCopy(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	if err := store.SaveClient(ctx, testutil.DefaultClient()); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetClient(ctx, testutil.DefaultClientID)
	got.RedirectURIs[0] = "https://evil.example.com/"
	got.Scopes = append(got.Scopes, "admin")

	again, _ := store.GetClient(ctx, testutil.DefaultClientID)
	if again.RedirectURIs[0] != testutil.DefaultRedirectURI {
		t.Errorf("stored redirect URI mutated to %q", again.RedirectURIs[0])
	}
	if len(again.Scopes) != 3 {
		t.Errorf("stored scopes mutated to %v", again.Scopes)
	}
}

func TestStore_SaveUser_Rename(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	user := testutil.User(t)
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	user.Username = "alice2"
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetUserByUsername(ctx, testutil.UserName); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("old username still resolves: %v", err)
	}
	if got, err := store.GetUserByUsername(ctx, "alice2"); err != nil || got.ID != testutil.UserID {
		t.Errorf("GetUserByUsername(alice2) = %v, %v", got, err)
	}
}

func TestStore_SaveUser_Invalid(t *testing.T) {
	store := New()
	defer store.Stop()

	if err := store.SaveUser(context.Background(), &storage.User{ID: "u"}); err == nil {
		t.Error("SaveUser() without username should return error")
	}
}

func TestStore_ConsumeAuthorizationCode_ClockExpiry(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	clock := testutil.NewMockTime(time.Now())
	store.SetClock(clock.Now)

	code := &storage.AuthorizationCode{
		Code:      "code",
		ClientID:  "c",
		UserID:    "u",
		ExpiresAt: clock.Now().Add(time.Minute),
	}
	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	ok, err := store.ConsumeAuthorizationCode(ctx, "code")
	if ok || err != nil {
		t.Errorf("ConsumeAuthorizationCode() at expiry = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_DeleteExpired_UserCodeIndex(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	clock := testutil.NewMockTime(time.Now())
	store.SetClock(clock.Now)

	err := store.SaveDeviceCode(ctx, &storage.DeviceCode{
		DeviceCode: "dev",
		UserCode:   "BCDF-GHJK",
		ClientID:   "tv",
		ExpiresAt:  clock.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Minute)
	if n, _ := store.DeleteExpired(ctx); n != 0 {
		t.Errorf("DeleteExpired() inside grace period = %d, want 0", n)
	}

	clock.Advance(storage.ExpiredDeviceCodeRetention)
	if n, _ := store.DeleteExpired(ctx); n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
	if len(store.userCodes) != 0 {
		t.Errorf("user code index not cleaned: %v", store.userCodes)
	}
}

func TestStore_CleanupLoop(t *testing.T) {
	store := NewWithInterval(10 * time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	err := store.SaveAccessToken(ctx, &storage.AccessToken{
		Token:     "expired",
		ClientID:  "c",
		ExpiresAt: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetAccessToken(ctx, "expired"); errors.Is(err, storage.ErrTokenNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("cleanup loop did not remove the expired token")
}

func TestStore_StopTwice(t *testing.T) {
	store := New()
	store.Stop()
	store.Stop()
}

func TestStore_SetLogger(t *testing.T) {
	store := New()
	defer store.Stop()

	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	store.SetLogger(logger)
	if store.logger != logger {
		t.Error("SetLogger() did not set logger")
	}

	store.SetLogger(nil)
	if store.logger != logger {
		t.Error("SetLogger(nil) replaced the logger")
	}
}

func TestStore_SetInstrumentation(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
	})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	store := New()
	defer store.Stop()
	store.SetInstrumentation(inst)

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code:      "c1",
		ClientID:  "c",
		ExpiresAt: time.Now().Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	_, _ = store.GetClient(ctx, "missing")

	rec := httptest.NewRecorder()
	inst.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"storage_authorization_codes_count", "storage_operation_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
