package storagetest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/oauth-engine/storage"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Clients", func(t *testing.T) { testClients(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("AuthorizationCodes", func(t *testing.T) { testAuthorizationCodes(t, newStore(t)) })
	t.Run("AuthorizationCodeConcurrentConsume", func(t *testing.T) { testConcurrentCodeConsume(t, newStore(t)) })
	t.Run("AccessTokens", func(t *testing.T) { testAccessTokens(t, newStore(t)) })
	t.Run("RefreshTokenRotation", func(t *testing.T) { testRefreshRotation(t, newStore(t)) })
	t.Run("RefreshTokenConcurrentRotate", func(t *testing.T) { testConcurrentRotate(t, newStore(t)) })
	t.Run("DeleteTokens", func(t *testing.T) { testDeleteTokens(t, newStore(t)) })
	t.Run("DeviceCodes", func(t *testing.T) { testDeviceCodes(t, newStore(t)) })
	t.Run("DeviceCodeConcurrentConsume", func(t *testing.T) { testConcurrentDeviceConsume(t, newStore(t)) })
	t.Run("Consent", func(t *testing.T) { testConsent(t, newStore(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, newStore(t)) })
}

func testClients(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetClient(ctx, "missing"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient(missing) error = %v, want ErrClientNotFound", err)
	}
	if _, err := s.GetDefaultClient(ctx); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetDefaultClient() on empty store error = %v, want ErrClientNotFound", err)
	}

	client := &storage.Client{
		ClientID:        "web",
		ClientName:      "Web",
		ClientType:      storage.ClientTypePublic,
		RedirectURIs:    []string{"https://a.example.com/cb", "https://b.example.com/cb"},
		Scopes:          []string{"openid", "profile"},
		GrantTypes:      []string{storage.GrantTypeAuthorizationCode},
		AccessTokenTTL:  300,
		RefreshTokenTTL: 3600,
		IsDefault:       true,
	}
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if err := s.SaveClient(ctx, &storage.Client{ClientID: "other", ClientType: storage.ClientTypeConfidential}); err != nil {
		t.Fatalf("SaveClient(other) error = %v", err)
	}

	got, err := s.GetClient(ctx, "web")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientName != "Web" || !got.IsPublic() || got.AccessTokenTTL != 300 || got.RefreshTokenTTL != 3600 {
		t.Errorf("GetClient() = %+v", got)
	}
	if !slices.Equal(got.RedirectURIs, client.RedirectURIs) {
		t.Errorf("RedirectURIs = %v, want %v", got.RedirectURIs, client.RedirectURIs)
	}
	if !slices.Equal(got.Scopes, client.Scopes) {
		t.Errorf("Scopes = %v, want %v", got.Scopes, client.Scopes)
	}
	if !got.AllowsGrant(storage.GrantTypeAuthorizationCode) {
		t.Errorf("GrantTypes = %v", got.GrantTypes)
	}

	def, err := s.GetDefaultClient(ctx)
	if err != nil {
		t.Fatalf("GetDefaultClient() error = %v", err)
	}
	if def.ClientID != "web" {
		t.Errorf("GetDefaultClient() = %s, want web", def.ClientID)
	}

	client.ClientName = "Web v2"
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient(replace) error = %v", err)
	}
	got, _ = s.GetClient(ctx, "web")
	if got.ClientName != "Web v2" {
		t.Errorf("ClientName after replace = %q, want Web v2", got.ClientName)
	}
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetUserByID(ctx, "nobody"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUserByID(nobody) error = %v, want ErrUserNotFound", err)
	}
	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUserByUsername(nobody) error = %v, want ErrUserNotFound", err)
	}

	user := &storage.User{
		ID:           "u1",
		Username:     "bob",
		Email:        "bob@example.com",
		FirstName:    "Bob",
		LastName:     "Builder",
		Active:       true,
		PasswordHash: "$2a$04$hash",
	}
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	byID, err := s.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if *byID != *user {
		t.Errorf("GetUserByID() = %+v, want %+v", byID, user)
	}
	byName, err := s.GetUserByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if byName.ID != "u1" {
		t.Errorf("GetUserByUsername() ID = %s, want u1", byName.ID)
	}
}

func newCode(value string, ttl time.Duration) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		Code:                value,
		ClientID:            "web",
		UserID:              "u1",
		RedirectURI:         "https://a.example.com/cb",
		Scopes:              []string{"openid"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}
}

func testAuthorizationCodes(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetAuthorizationCode(ctx, "missing"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("GetAuthorizationCode(missing) error = %v", err)
	}
	if ok, err := s.ConsumeAuthorizationCode(ctx, "missing"); ok || !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("ConsumeAuthorizationCode(missing) = %v, %v", ok, err)
	}

	code := newCode("code-1", 5*time.Minute)
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	got, err := s.GetAuthorizationCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if got.ClientID != "web" || got.RedirectURI != code.RedirectURI || got.CodeChallenge != "challenge" || got.CodeChallengeMethod != "S256" {
		t.Errorf("GetAuthorizationCode() = %+v", got)
	}
	if got.Consumed {
		t.Error("new code is consumed")
	}

	ok, err := s.ConsumeAuthorizationCode(ctx, "code-1")
	if err != nil || !ok {
		t.Fatalf("first ConsumeAuthorizationCode() = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.ConsumeAuthorizationCode(ctx, "code-1")
	if err != nil || ok {
		t.Errorf("second ConsumeAuthorizationCode() = %v, %v; want false, nil", ok, err)
	}
	got, _ = s.GetAuthorizationCode(ctx, "code-1")
	if !got.Consumed {
		t.Error("GetAuthorizationCode() after consume: Consumed = false")
	}

	expired := newCode("code-expired", -time.Minute)
	if err := s.SaveAuthorizationCode(ctx, expired); err != nil {
		t.Fatalf("SaveAuthorizationCode(expired) error = %v", err)
	}
	if ok, err := s.ConsumeAuthorizationCode(ctx, "code-expired"); ok {
		t.Errorf("ConsumeAuthorizationCode(expired) = true, %v", err)
	}

	other := newCode("code-2", 5*time.Minute)
	other.ClientID = "other"
	if err := s.SaveAuthorizationCode(ctx, other); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAuthorizationCodes(ctx, "u1", "web"); err != nil {
		t.Fatalf("DeleteAuthorizationCodes() error = %v", err)
	}
	if _, err := s.GetAuthorizationCode(ctx, "code-1"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("code-1 survived DeleteAuthorizationCodes: %v", err)
	}
	if _, err := s.GetAuthorizationCode(ctx, "code-2"); err != nil {
		t.Errorf("code of another client was deleted: %v", err)
	}
	if err := s.DeleteAuthorizationCodes(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAuthorizationCode(ctx, "code-2"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("code-2 survived DeleteAuthorizationCodes without client: %v", err)
	}
}

func testConcurrentCodeConsume(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.SaveAuthorizationCode(ctx, newCode("race", time.Minute)); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeAuthorizationCode(ctx, "race")
			if err != nil {
				t.Errorf("ConsumeAuthorizationCode() error = %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("successful consumes = %d, want 1", got)
	}
}

func newAccess(value, userID, clientID string, ttl time.Duration) *storage.AccessToken {
	now := time.Now()
	return &storage.AccessToken{
		ID:        uuid.NewString(),
		Token:     value,
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    []string{"openid", "profile"},
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func newRefresh(value, userID, clientID string, ttl time.Duration) *storage.RefreshToken {
	now := time.Now()
	return &storage.RefreshToken{
		ID:        uuid.NewString(),
		Token:     value,
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    []string{"openid"},
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func testAccessTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetAccessToken(ctx, "missing"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken(missing) error = %v", err)
	}
	if err := s.RevokeAccessToken(ctx, "missing"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("RevokeAccessToken(missing) error = %v", err)
	}

	at := newAccess("access-1", "u1", "web", time.Hour)
	if err := s.SaveAccessToken(ctx, at); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}
	got, err := s.GetAccessToken(ctx, "access-1")
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.ID != at.ID || got.UserID != "u1" || got.ClientID != "web" || !slices.Equal(got.Scopes, at.Scopes) {
		t.Errorf("GetAccessToken() = %+v", got)
	}
	if got.ExpiresAt.Unix() != at.ExpiresAt.Unix() {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, at.ExpiresAt)
	}

	if err := s.RevokeAccessToken(ctx, "access-1"); err != nil {
		t.Fatalf("RevokeAccessToken() error = %v", err)
	}
	got, _ = s.GetAccessToken(ctx, "access-1")
	if !got.Revoked {
		t.Error("access token not revoked")
	}
}

func testRefreshRotation(t *testing.T, s storage.Store) {
	ctx := context.Background()

	next := newRefresh("refresh-2", "u1", "web", time.Hour)
	if err := s.RotateRefreshToken(ctx, "missing", next); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("RotateRefreshToken(missing) error = %v, want ErrTokenNotFound", err)
	}

	first := newRefresh("refresh-1", "u1", "web", time.Hour)
	if err := s.SaveRefreshToken(ctx, first); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}
	if err := s.RotateRefreshToken(ctx, "refresh-1", next); err != nil {
		t.Fatalf("RotateRefreshToken() error = %v", err)
	}

	old, err := s.GetRefreshToken(ctx, "refresh-1")
	if err != nil {
		t.Fatal(err)
	}
	if !old.Revoked || old.RotatedTo != next.ID {
		t.Errorf("old token = revoked %v rotated_to %q, want true %q", old.Revoked, old.RotatedTo, next.ID)
	}
	cur, err := s.GetRefreshToken(ctx, "refresh-2")
	if err != nil {
		t.Fatalf("GetRefreshToken(next) error = %v", err)
	}
	if cur.Revoked || cur.ID != next.ID {
		t.Errorf("next token = %+v", cur)
	}

	replay := newRefresh("refresh-3", "u1", "web", time.Hour)
	if err := s.RotateRefreshToken(ctx, "refresh-1", replay); !errors.Is(err, storage.ErrRefreshTokenRevoked) {
		t.Errorf("RotateRefreshToken(rotated) error = %v, want ErrRefreshTokenRevoked", err)
	}
	if _, err := s.GetRefreshToken(ctx, "refresh-3"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("replayed rotation stored its token: %v", err)
	}

	if err := s.RevokeRefreshToken(ctx, "refresh-2"); err != nil {
		t.Fatalf("RevokeRefreshToken() error = %v", err)
	}
	if err := s.RotateRefreshToken(ctx, "refresh-2", replay); !errors.Is(err, storage.ErrRefreshTokenRevoked) {
		t.Errorf("RotateRefreshToken(revoked) error = %v, want ErrRefreshTokenRevoked", err)
	}
	if err := s.RevokeRefreshToken(ctx, "missing"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("RevokeRefreshToken(missing) error = %v", err)
	}
}

func testConcurrentRotate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.SaveRefreshToken(ctx, newRefresh("parent", "u1", "web", time.Hour)); err != nil {
		t.Fatal(err)
	}

	const workers = 10
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := newRefresh("child-"+string(rune('a'+i)), "u1", "web", time.Hour)
			err := s.RotateRefreshToken(ctx, "parent", next)
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, storage.ErrRefreshTokenRevoked):
				t.Errorf("RotateRefreshToken() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("successful rotations = %d, want 1", got)
	}
}

func testDeleteTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.SaveAccessToken(ctx, newAccess("a-web", "u1", "web", time.Hour)))
	must(s.SaveAccessToken(ctx, newAccess("a-other", "u1", "other", time.Hour)))
	must(s.SaveAccessToken(ctx, newAccess("a-u2", "u2", "web", time.Hour)))
	must(s.SaveRefreshToken(ctx, newRefresh("r-web", "u1", "web", time.Hour)))
	must(s.SaveRefreshToken(ctx, newRefresh("r-other", "u1", "other", time.Hour)))

	must(s.DeleteTokens(ctx, "u1", "web"))
	if _, err := s.GetAccessToken(ctx, "a-web"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("a-web survived: %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, "r-web"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("r-web survived: %v", err)
	}
	if _, err := s.GetAccessToken(ctx, "a-other"); err != nil {
		t.Errorf("a-other deleted: %v", err)
	}

	must(s.DeleteTokens(ctx, "u1", ""))
	if _, err := s.GetAccessToken(ctx, "a-other"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("a-other survived: %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, "r-other"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("r-other survived: %v", err)
	}
	if _, err := s.GetAccessToken(ctx, "a-u2"); err != nil {
		t.Errorf("token of another user deleted: %v", err)
	}
}

func newDevice(deviceCode, userCode string, ttl time.Duration) *storage.DeviceCode {
	now := time.Now()
	return &storage.DeviceCode{
		ID:         uuid.NewString(),
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   "tv",
		Scopes:     []string{"openid"},
		ExpiresAt:  now.Add(ttl),
		Interval:   5,
		CreatedAt:  now,
	}
}

func testDeviceCodes(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetDeviceCode(ctx, "missing"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("GetDeviceCode(missing) error = %v", err)
	}
	if err := s.AuthorizeDeviceCode(ctx, "missing", "u1"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("AuthorizeDeviceCode(missing) error = %v", err)
	}
	if ok, err := s.ConsumeDeviceCode(ctx, "missing"); ok || !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("ConsumeDeviceCode(missing) = %v, %v", ok, err)
	}

	if err := s.SaveDeviceCode(ctx, newDevice("dev-1", "BCDF-GHJK", 10*time.Minute)); err != nil {
		t.Fatalf("SaveDeviceCode() error = %v", err)
	}

	pending, err := s.GetPendingDeviceCodeByUserCode(ctx, "BCDF-GHJK")
	if err != nil {
		t.Fatalf("GetPendingDeviceCodeByUserCode() error = %v", err)
	}
	if pending.DeviceCode != "dev-1" || pending.Interval != 5 || !pending.IsPending() {
		t.Errorf("pending code = %+v", pending)
	}
	if _, err := s.GetPendingDeviceCodeByUserCode(ctx, "ZZZZ-ZZZZ"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("unknown user code error = %v", err)
	}

	if ok, err := s.ConsumeDeviceCode(ctx, "dev-1"); ok || err != nil {
		t.Errorf("ConsumeDeviceCode(pending) = %v, %v; want false, nil", ok, err)
	}

	if err := s.AuthorizeDeviceCode(ctx, "dev-1", "u1"); err != nil {
		t.Fatalf("AuthorizeDeviceCode() error = %v", err)
	}
	if err := s.AuthorizeDeviceCode(ctx, "dev-1", "u2"); !errors.Is(err, storage.ErrDeviceCodeNotPending) {
		t.Errorf("second AuthorizeDeviceCode() error = %v, want ErrDeviceCodeNotPending", err)
	}
	if _, err := s.GetPendingDeviceCodeByUserCode(ctx, "BCDF-GHJK"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("authorized code still pending by user code: %v", err)
	}
	got, _ := s.GetDeviceCode(ctx, "dev-1")
	if !got.Authorized || got.UserID != "u1" {
		t.Errorf("authorized code = %+v", got)
	}

	if ok, err := s.ConsumeDeviceCode(ctx, "dev-1"); !ok || err != nil {
		t.Fatalf("ConsumeDeviceCode() = %v, %v; want true, nil", ok, err)
	}
	if ok, err := s.ConsumeDeviceCode(ctx, "dev-1"); ok || err != nil {
		t.Errorf("second ConsumeDeviceCode() = %v, %v; want false, nil", ok, err)
	}

	if err := s.SaveDeviceCode(ctx, newDevice("dev-expired", "QRST-VWXZ", -time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPendingDeviceCodeByUserCode(ctx, "QRST-VWXZ"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("expired code found by user code: %v", err)
	}
	if err := s.AuthorizeDeviceCode(ctx, "dev-expired", "u1"); !errors.Is(err, storage.ErrDeviceCodeNotPending) {
		t.Errorf("AuthorizeDeviceCode(expired) error = %v, want ErrDeviceCodeNotPending", err)
	}

	if err := s.DeleteDeviceCodes(ctx, "u1", ""); err != nil {
		t.Fatalf("DeleteDeviceCodes() error = %v", err)
	}
	if _, err := s.GetDeviceCode(ctx, "dev-1"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("dev-1 survived DeleteDeviceCodes: %v", err)
	}
}

func testConcurrentDeviceConsume(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.SaveDeviceCode(ctx, newDevice("dev-race", "MNPQ-RSTV", time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.AuthorizeDeviceCode(ctx, "dev-race", "u1"); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeDeviceCode(ctx, "dev-race")
			if err != nil {
				t.Errorf("ConsumeDeviceCode() error = %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("successful consumes = %d, want 1", got)
	}
}

func testConsent(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetConsent(ctx, "u1", "web"); !errors.Is(err, storage.ErrConsentNotFound) {
		t.Errorf("GetConsent() before grant error = %v, want ErrConsentNotFound", err)
	}

	first := &storage.Consent{UserID: "u1", ClientID: "web", Scopes: []string{"openid"}, GrantedAt: time.Now()}
	if err := s.GrantConsent(ctx, first); err != nil {
		t.Fatalf("GrantConsent() error = %v", err)
	}
	second := &storage.Consent{UserID: "u1", ClientID: "web", Scopes: []string{"openid", "email"}, GrantedAt: time.Now()}
	if err := s.GrantConsent(ctx, second); err != nil {
		t.Fatalf("GrantConsent(replace) error = %v", err)
	}

	got, err := s.GetConsent(ctx, "u1", "web")
	if err != nil {
		t.Fatalf("GetConsent() error = %v", err)
	}
	if !slices.Equal(got.Scopes, second.Scopes) {
		t.Errorf("consent scopes = %v, want %v", got.Scopes, second.Scopes)
	}
	if _, err := s.GetConsent(ctx, "u1", "other"); !errors.Is(err, storage.ErrConsentNotFound) {
		t.Errorf("GetConsent(other client) error = %v", err)
	}
}

func testDeleteExpired(t *testing.T, s storage.Store) {
	sw, ok := s.(storage.Sweeper)
	if !ok {
		t.Skip("store does not implement storage.Sweeper")
	}
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.SaveAuthorizationCode(ctx, newCode("live", time.Hour)))
	must(s.SaveAuthorizationCode(ctx, newCode("dead", -time.Minute)))
	must(s.SaveAccessToken(ctx, newAccess("a-dead", "u1", "web", -time.Minute)))
	must(s.SaveRefreshToken(ctx, newRefresh("r-live", "u1", "web", time.Hour)))
	must(s.SaveDeviceCode(ctx, newDevice("d-dead", "XXXX-BBBB", -time.Hour)))
	must(s.SaveDeviceCode(ctx, newDevice("d-grace", "XXXX-CCCC", -time.Minute)))

	n, err := sw.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n < 3 {
		t.Errorf("DeleteExpired() = %d, want at least 3", n)
	}
	if _, err := s.GetAuthorizationCode(ctx, "live"); err != nil {
		t.Errorf("live code removed: %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, "r-live"); err != nil {
		t.Errorf("live refresh token removed: %v", err)
	}
	if _, err := s.GetAuthorizationCode(ctx, "dead"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("expired code kept: %v", err)
	}
	if _, err := s.GetDeviceCode(ctx, "d-dead"); !errors.Is(err, storage.ErrDeviceCodeNotFound) {
		t.Errorf("expired device code kept: %v", err)
	}
	if _, err := s.GetDeviceCode(ctx, "d-grace"); err != nil {
		t.Errorf("device code inside the expiry grace period removed: %v", err)
	}
}
