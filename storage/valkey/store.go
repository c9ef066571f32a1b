package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// DefaultExpiredRetention keeps expired records around so they can be
	// told apart from unknown ones.
	DefaultExpiredRetention = 10 * time.Minute

	// tokenIDLogLength is the number of characters to include when logging token IDs
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	storageType = "valkey"
)

// Index kinds of the per-user record sets.
const (
	indexCodes   = "codes"
	indexAccess  = "access"
	indexRefresh = "refresh"
	indexDevices = "devices"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// ExpiredRetention is how long a record outlives its ExpiresAt
	// (default DefaultExpiredRetention).
	ExpiredRetention time.Duration
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client    valkeygo.Client
	prefix    string
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	encryptor *security.Encryptor
	inst      *instrumentation.Instrumentation
}

var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention := cfg.ExpiredRetention
	if retention <= 0 {
		retention = DefaultExpiredRetention
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:    client,
		prefix:    prefix,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetEncryptor enables encryption at rest for every stored payload.
// Records written before the encryptor was set become unreadable.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil {
		s.logger.Info("Encryption at rest enabled for Valkey storage")
	}
}

// SetInstrumentation enables tracing and operation metrics.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inst = inst
}

func (s *Store) op(ctx context.Context, operation string) (context.Context, func(error)) {
	s.mu.RLock()
	inst := s.inst
	s.mu.RUnlock()
	return inst.StartStorageOperation(ctx, storageType, operation)
}

// seal encodes a payload for storage under key.
func (s *Store) seal(key string, data []byte) (string, error) {
	s.mu.RLock()
	enc := s.encryptor
	s.mu.RUnlock()
	if enc == nil {
		return string(data), nil
	}
	return enc.Seal(string(data), key)
}

// open reverses seal.
func (s *Store) open(key, value string) ([]byte, error) {
	s.mu.RLock()
	enc := s.encryptor
	s.mu.RUnlock()
	if enc == nil {
		return []byte(value), nil
	}
	plain, err := enc.Open(value, key)
	if err != nil {
		return nil, err
	}
	return []byte(plain), nil
}

// ttlFor returns the key TTL for a record expiring at expiresAt.
func (s *Store) ttlFor(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now()) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *Store) nowArg() string {
	return strconv.FormatInt(s.now().Unix(), 10)
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// ============================================================
// Key Helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

func (s *Store) defaultClientKey() string {
	return s.prefix + "client:default"
}

func (s *Store) userKey(userID string) string {
	return fmt.Sprintf("%suser:%s", s.prefix, userID)
}

func (s *Store) usernameKey(username string) string {
	return fmt.Sprintf("%susername:%s", s.prefix, username)
}

func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, security.HashToken(code))
}

func (s *Store) accessKey(token string) string {
	return fmt.Sprintf("%saccess:%s", s.prefix, security.HashToken(token))
}

func (s *Store) refreshKey(token string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, security.HashToken(token))
}

func (s *Store) deviceKey(deviceCode string) string {
	return fmt.Sprintf("%sdevice:%s", s.prefix, deviceCode)
}

func (s *Store) userCodeKey(userCode string) string {
	return fmt.Sprintf("%susercode:%s", s.prefix, userCode)
}

func (s *Store) consentKey(userID, clientID string) string {
	return fmt.Sprintf("%sconsent:%s:%s", s.prefix, userID, clientID)
}

func (s *Store) indexKey(userID, kind string) string {
	return fmt.Sprintf("%sindex:%s:%s", s.prefix, userID, kind)
}
