package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/internal/testutil"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "oauth.db"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown driver", cfg: Config{Driver: "postgres", DSN: "x"}},
		{name: "empty driver", cfg: Config{DSN: "x"}},
		{name: "empty DSN", cfg: Config{Driver: DriverSQLite}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), tt.cfg); err == nil {
				t.Error("New() should return error")
			}
		})
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth.db")
	ctx := context.Background()

	s, err := New(ctx, Config{Driver: DriverSQLite, DSN: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveClient(ctx, testutil.DefaultClient()); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = New(ctx, Config{Driver: DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if _, err := s.GetClient(ctx, testutil.DefaultClientID); err != nil {
		t.Errorf("GetClient() after reopen error = %v", err)
	}
}

func TestStore_TokensStoredHashed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const value = "plain-refresh-token"
	err := s.SaveRefreshToken(ctx, &storage.RefreshToken{
		ID:        "rt-1",
		Token:     value,
		ClientID:  "c",
		UserID:    "u",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	var key string
	if err := s.DB().QueryRowContext(ctx, "SELECT token_hash FROM refresh_tokens WHERE id = ?", "rt-1").Scan(&key); err != nil {
		t.Fatal(err)
	}
	if key != security.HashToken(value) {
		t.Errorf("token_hash = %q, want sha256 of the token", key)
	}
	if strings.Contains(key, value) {
		t.Error("token value stored in clear")
	}

	got, err := s.GetRefreshToken(ctx, value)
	if err != nil {
		t.Fatalf("GetRefreshToken() error = %v", err)
	}
	if got.Token != value {
		t.Errorf("Token = %q, want %q", got.Token, value)
	}
}

func TestStore_ClientRoundTripEmptyLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveClient(ctx, &storage.Client{ClientID: "bare", ClientType: storage.ClientTypeConfidential}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetClient(ctx, "bare")
	if err != nil {
		t.Fatal(err)
	}
	if got.RedirectURIs != nil || got.Scopes != nil || got.GrantTypes != nil {
		t.Errorf("empty lists = %v %v %v, want nil", got.RedirectURIs, got.Scopes, got.GrantTypes)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(MySQLConfig{
		Host:     "db.internal",
		Port:     3306,
		User:     "oauth",
		Password: "s3cret",
		Database: "oauth",
	})
	for _, want := range []string{"oauth:s3cret@tcp(db.internal:3306)/oauth", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("MySQLDSN() = %q, missing %q", dsn, want)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"openid", 1},
		{"openid  profile email", 3},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); len(got) != tt.want {
			t.Errorf("splitList(%q) = %v, want %d items", tt.in, got, tt.want)
		}
	}
}
