package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-engine/storage"
)

// Fixture identifiers and secrets.
const (
	DefaultClientID      = "default-client"
	ConfidentialClientID = "service-client"
	ConfidentialSecret   = "service-secret"
	DeviceClientID       = "tv-client"
	ConsentClientID      = "third-party"
	ConsentClientSecret  = "third-party-secret"

	UserID       = "user-1"
	UserName     = "alice"
	UserPassword = "wonderland"
	UserEmail    = "alice@example.com"

	DefaultRedirectURI = "http://localhost/callback"
	ConsentRedirectURI = "https://app.example.com/callback"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

// RSAKey returns a 2048-bit key generated once per test binary.
func RSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if keyErr != nil {
		t.Fatalf("generate RSA key: %v", keyErr)
	}
	return key
}

// GenerateRandomString generates a random base64url string of the given length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair returns (challenge, verifier) where challenge is the S256
// transform of verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = GenerateRandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// HashSecret bcrypt-hashes s at minimum cost so tests stay fast.
func HashSecret(t testing.TB, s string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	return string(h)
}

// DefaultClient is the public first-party client.
func DefaultClient() *storage.Client {
	return &storage.Client{
		ClientID:        DefaultClientID,
		ClientName:      "Default Client",
		ClientType:      storage.ClientTypePublic,
		RedirectURIs:    []string{DefaultRedirectURI},
		Scopes:          []string{"openid", "profile", "email"},
		GrantTypes:      []string{storage.GrantTypeAuthorizationCode},
		AccessTokenTTL:  300,
		RefreshTokenTTL: 7200,
		IsDefault:       true,
		CreatedAt:       time.Now(),
	}
}

// ConfidentialClient is a backend client allowed every grant except device.
func ConfidentialClient(t testing.TB) *storage.Client {
	return &storage.Client{
		ClientID:         ConfidentialClientID,
		ClientName:       "Service Client",
		ClientType:       storage.ClientTypeConfidential,
		ClientSecretHash: HashSecret(t, ConfidentialSecret),
		RedirectURIs:     []string{"https://service.example.com/callback"},
		Scopes:           []string{"openid", "profile", "email", "api:read"},
		GrantTypes: []string{
			storage.GrantTypeAuthorizationCode,
			storage.GrantTypeClientCredentials,
			storage.GrantTypeRefreshToken,
		},
		AccessTokenTTL:  600,
		RefreshTokenTTL: 7200,
		CreatedAt:       time.Now(),
	}
}

// DeviceClient is a public client using the device grant.
func DeviceClient() *storage.Client {
	return &storage.Client{
		ClientID:        DeviceClientID,
		ClientName:      "Living Room TV",
		ClientType:      storage.ClientTypePublic,
		Scopes:          []string{"openid", "profile"},
		GrantTypes:      []string{storage.GrantTypeDeviceCode, storage.GrantTypeRefreshToken},
		AccessTokenTTL:  300,
		RefreshTokenTTL: 7200,
		CreatedAt:       time.Now(),
	}
}

// ConsentClient is a confidential third-party client that requires consent.
func ConsentClient(t testing.TB) *storage.Client {
	return &storage.Client{
		ClientID:         ConsentClientID,
		ClientName:       "Third Party App",
		ClientType:       storage.ClientTypeConfidential,
		ClientSecretHash: HashSecret(t, ConsentClientSecret),
		RedirectURIs:     []string{ConsentRedirectURI},
		Scopes:           []string{"openid", "email"},
		GrantTypes:       []string{storage.GrantTypeAuthorizationCode, storage.GrantTypeRefreshToken},
		AccessTokenTTL:   300,
		RefreshTokenTTL:  7200,
		ConsentRequired:  true,
		CreatedAt:        time.Now(),
	}
}

// User returns the active fixture user.
func User(t testing.TB) *storage.User {
	return &storage.User{
		ID:           UserID,
		Username:     UserName,
		Email:        UserEmail,
		FirstName:    "Alice",
		LastName:     "Liddell",
		Active:       true,
		PasswordHash: HashSecret(t, UserPassword),
	}
}

// Seed saves every fixture client and the fixture user into store.
func Seed(t testing.TB, store interface {
	storage.ClientStore
	storage.UserStore
}) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []*storage.Client{DefaultClient(), ConfidentialClient(t), DeviceClient(), ConsentClient(t)} {
		if err := store.SaveClient(ctx, c); err != nil {
			t.Fatalf("seed client %s: %v", c.ClientID, err)
		}
	}
	if err := store.SaveUser(ctx, User(t)); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}
