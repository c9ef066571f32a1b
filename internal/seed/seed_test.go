package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/storage/memory"
)

const validSeed = `
clients:
  - id: default-client
    name: Web UI
    type: public
    default: true
    redirect_uris: [http://localhost/callback]
    scopes: [openid, profile, email]
    grant_types: [authorization_code, refresh_token]
  - id: billing
    secret: s3cret
    scopes: [invoices:read]
    grant_types: [client_credentials]
    access_token_ttl: 600
users:
  - id: user-1
    username: alice
    password: wonderland
    email: alice@example.com
    first_name: Alice
    last_name: Liddell
  - id: user-2
    username: bob
    password_hash: "$2a$10$abcdefghijklmnopqrstuu"
    active: false
`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"valid", validSeed, nil},
		{"syntax error", "clients: [", ErrInvalidYAML},
		{"unknown field", "clients:\n  - id: a\n    colour: red\n", ErrInvalidYAML},
		{"missing client id", "clients:\n  - type: public\n    grant_types: [authorization_code]\n", ErrInvalid},
		{"duplicate client", "clients:\n  - {id: a, type: public, grant_types: [x]}\n  - {id: a, type: public, grant_types: [x]}\n", ErrInvalid},
		{"unknown type", "clients:\n  - {id: a, type: robot, grant_types: [x]}\n", ErrInvalid},
		{"public with secret", "clients:\n  - {id: a, type: public, secret: s, grant_types: [x]}\n", ErrInvalid},
		{"confidential without secret", "clients:\n  - {id: a, grant_types: [x]}\n", ErrInvalid},
		{"no grant types", "clients:\n  - {id: a, type: public}\n", ErrInvalid},
		{"two defaults", "clients:\n  - {id: a, type: public, default: true, grant_types: [x]}\n  - {id: b, type: public, default: true, grant_types: [x]}\n", ErrInvalid},
		{"user without username", "users:\n  - {id: u}\n", ErrInvalid},
		{"duplicate username", "users:\n  - {id: u1, username: a}\n  - {id: u2, username: a}\n", ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load(missing) error = %v, want %v", err, ErrFileNotFound)
	}
	if _, err := Load(empty); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Load(empty) error = %v, want %v", err, ErrEmptyFile)
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Stop()

	f, err := Parse([]byte(validSeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res, err := Apply(ctx, store, f, now)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Clients != 2 || res.Users != 2 {
		t.Errorf("Apply() = %+v, want 2 clients and 2 users", res)
	}

	def, err := store.GetDefaultClient(ctx)
	if err != nil {
		t.Fatalf("GetDefaultClient() error = %v", err)
	}
	if def.ClientID != "default-client" || !def.IsPublic() || def.ClientSecretHash != "" {
		t.Errorf("default client = %+v", def)
	}

	billing, err := store.GetClient(ctx, "billing")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if billing.ClientType != storage.ClientTypeConfidential {
		t.Errorf("ClientType = %q, want %q", billing.ClientType, storage.ClientTypeConfidential)
	}
	if billing.ClientName != "billing" {
		t.Errorf("ClientName = %q, want the id", billing.ClientName)
	}
	if !security.VerifySecret(billing.ClientSecretHash, "s3cret") {
		t.Error("client secret was not hashed from the plaintext")
	}
	if billing.AccessTokenTTL != 600 || !billing.CreatedAt.Equal(now) {
		t.Errorf("billing = %+v", billing)
	}

	alice, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if !alice.Active || alice.DisplayName() != "Alice Liddell" {
		t.Errorf("alice = %+v", alice)
	}
	if !security.VerifySecret(alice.PasswordHash, "wonderland") {
		t.Error("password was not hashed from the plaintext")
	}

	bob, err := store.GetUserByID(ctx, "user-2")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if bob.Active || bob.PasswordHash != "$2a$10$abcdefghijklmnopqrstuu" {
		t.Errorf("bob = %+v", bob)
	}
}

type failingStore struct{}

func (failingStore) SaveClient(context.Context, *storage.Client) error {
	return errors.New("disk full")
}
func (failingStore) SaveUser(context.Context, *storage.User) error { return nil }

func TestApply_StoreError(t *testing.T) {
	f, err := Parse([]byte(validSeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	res, err := Apply(context.Background(), failingStore{}, f, time.Now())
	if err == nil {
		t.Fatal("Apply() error = nil, want store error")
	}
	if res.Clients != 0 || res.Users != 0 {
		t.Errorf("Apply() = %+v after failure", res)
	}
}

func TestWatch_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte(validSeed), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	if err := Watch(ctx, path, 100*time.Millisecond, nil, func() { reloads.Add(1) }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(validSeed), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
}

func TestWatchAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte("users:\n  - {id: u1, username: carol}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := memory.New()
	defer store.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := LoadAndApply(ctx, store, path); err != nil {
		t.Fatalf("LoadAndApply() error = %v", err)
	}
	if err := WatchAndApply(ctx, store, path, nil); err != nil {
		t.Fatalf("WatchAndApply() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("users:\n  - {id: u1, username: carol}\n  - {id: u2, username: dave}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetUserByUsername(ctx, "dave"); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("user added to the seed file was not applied")
}
