package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

const (
	storageType = "memory"

	// tokenIDLogLength is the number of characters of a code or token that
	// may appear in debug logs.
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	users         map[string]*storage.User
	usernames     map[string]string // username -> user ID
	codes         map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken
	deviceCodes   map[string]*storage.DeviceCode
	userCodes     map[string]string // user code -> device code
	consents      map[consentKey]*storage.Consent

	inst   *instrumentation.Instrumentation
	logger *slog.Logger
	now    func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type consentKey struct {
	userID, clientID string
}

var (
	_ storage.Store   = (*Store)(nil)
	_ storage.Sweeper = (*Store)(nil)
)

// New creates a store that sweeps expired records every minute.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a store with a custom sweep interval.
// A non-positive interval falls back to one minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &Store{
		clients:         make(map[string]*storage.Client),
		users:           make(map[string]*storage.User),
		usernames:       make(map[string]string),
		codes:           make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		deviceCodes:     make(map[string]*storage.DeviceCode),
		userCodes:       make(map[string]string),
		consents:        make(map[consentKey]*storage.Consent),
		logger:          slog.Default(),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetClock overrides the time source used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation enables tracing, operation metrics and size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.inst = inst
	s.mu.Unlock()

	if inst == nil {
		return
	}
	count := func(fn func() int) instrumentation.StorageSizeCallback {
		return func() int64 {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return int64(fn())
		}
	}
	if err := inst.RegisterStorageSizeCallbacks(
		count(func() int { return len(s.codes) }),
		count(func() int { return len(s.accessTokens) }),
		count(func() int { return len(s.refreshTokens) }),
		count(func() int { return len(s.deviceCodes) }),
	); err != nil {
		s.logger.Warn("Failed to register storage size metrics", "error", err)
	}
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *Store) op(ctx context.Context, operation string) (context.Context, func(error)) {
	s.mu.RLock()
	inst := s.inst
	s.mu.RUnlock()
	return inst.StartStorageOperation(ctx, storageType, operation)
}

// ============================================================
// ClientStore
// ============================================================

// GetClient returns a copy of the client.
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	_, done := s.op(ctx, "get_client")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return cloneClient(c), nil
}

// GetDefaultClient returns the client flagged IsDefault.
func (s *Store) GetDefaultClient(ctx context.Context) (_ *storage.Client, err error) {
	_, done := s.op(ctx, "get_default_client")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.IsDefault {
			return cloneClient(c), nil
		}
	}
	return nil, fmt.Errorf("%w: no default client", storage.ErrClientNotFound)
}

// SaveClient creates or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	_, done := s.op(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneClient(client)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.clients[c.ClientID] = c
	return nil
}

// ============================================================
// UserStore
// ============================================================

// GetUserByID returns a copy of the user.
func (s *Store) GetUserByID(ctx context.Context, id string) (_ *storage.User, err error) {
	_, done := s.op(ctx, "get_user")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername looks a user up by login name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (_ *storage.User, err error) {
	_, done := s.op(ctx, "get_user_by_username")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// SaveUser creates or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) (err error) {
	_, done := s.op(ctx, "save_user")
	defer func() { done(err) }()

	if user == nil || user.ID == "" || user.Username == "" {
		return fmt.Errorf("user ID and username cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[user.ID]; ok && prev.Username != user.Username {
		delete(s.usernames, prev.Username)
	}
	cp := *user
	s.users[user.ID] = &cp
	s.usernames[user.Username] = user.ID
	return nil
}

// ============================================================
// AuthorizationCodeStore
// ============================================================

// SaveAuthorizationCode stores a new code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	_, done := s.op(ctx, "save_authorization_code")
	defer func() { done(err) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	cp.Scopes = slices.Clone(code.Scopes)
	s.codes[code.Code] = &cp

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode returns the code record, consumed or not.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	_, done := s.op(ctx, "get_authorization_code")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp, nil
}

// ConsumeAuthorizationCode flips Consumed under the write lock.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (_ bool, err error) {
	_, done := s.op(ctx, "consume_authorization_code")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return false, storage.ErrAuthorizationCodeNotFound
	}
	if c.Consumed || security.IsExpired(c.ExpiresAt, s.now()) {
		return false, nil
	}
	c.Consumed = true
	return true, nil
}

// DeleteAuthorizationCodes removes a user's codes.
func (s *Store) DeleteAuthorizationCodes(ctx context.Context, userID, clientID string) (err error) {
	_, done := s.op(ctx, "delete_authorization_codes")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.codes {
		if owned(c.UserID, c.ClientID, userID, clientID) {
			delete(s.codes, k)
		}
	}
	return nil
}

// ============================================================
// TokenStore
// ============================================================

// SaveAccessToken stores an issued access token.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	_, done := s.op(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	cp.Scopes = slices.Clone(token.Scopes)
	s.accessTokens[token.Token] = &cp
	return nil
}

// GetAccessToken returns the stored record for a token value.
func (s *Store) GetAccessToken(ctx context.Context, token string) (_ *storage.AccessToken, err error) {
	_, done := s.op(ctx, "get_access_token")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.accessTokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	return &cp, nil
}

// RevokeAccessToken marks an access token revoked.
func (s *Store) RevokeAccessToken(ctx context.Context, token string) (err error) {
	_, done := s.op(ctx, "revoke_access_token")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.accessTokens[token]
	if !ok {
		return storage.ErrTokenNotFound
	}
	t.Revoked = true
	return nil
}

// SaveRefreshToken stores an issued refresh token.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	_, done := s.op(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[token.Token] = cloneRefresh(token)
	return nil
}

// GetRefreshToken returns the stored record for a token value.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (_ *storage.RefreshToken, err error) {
	_, done := s.op(ctx, "get_refresh_token")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	return cloneRefresh(t), nil
}

// RevokeRefreshToken marks a refresh token revoked.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) (err error) {
	_, done := s.op(ctx, "revoke_refresh_token")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[token]
	if !ok {
		return storage.ErrTokenNotFound
	}
	t.Revoked = true
	return nil
}

// RotateRefreshToken revokes oldToken and stores next in one critical section.
func (s *Store) RotateRefreshToken(ctx context.Context, oldToken string, next *storage.RefreshToken) (err error) {
	_, done := s.op(ctx, "rotate_refresh_token")
	defer func() { done(err) }()

	if next == nil || next.Token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refreshTokens[oldToken]
	if !ok {
		return storage.ErrTokenNotFound
	}
	if old.Revoked {
		return storage.ErrRefreshTokenRevoked
	}
	old.Revoked = true
	old.RotatedTo = next.ID
	s.refreshTokens[next.Token] = cloneRefresh(next)
	return nil
}

// DeleteTokens removes a user's access and refresh tokens.
func (s *Store) DeleteTokens(ctx context.Context, userID, clientID string) (err error) {
	_, done := s.op(ctx, "delete_tokens")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.accessTokens {
		if owned(t.UserID, t.ClientID, userID, clientID) {
			delete(s.accessTokens, k)
		}
	}
	for k, t := range s.refreshTokens {
		if owned(t.UserID, t.ClientID, userID, clientID) {
			delete(s.refreshTokens, k)
		}
	}
	return nil
}

// ============================================================
// DeviceCodeStore
// ============================================================

// SaveDeviceCode stores a new device authorization.
func (s *Store) SaveDeviceCode(ctx context.Context, code *storage.DeviceCode) (err error) {
	_, done := s.op(ctx, "save_device_code")
	defer func() { done(err) }()

	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		return fmt.Errorf("device code and user code cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceCodes[code.DeviceCode] = cloneDevice(code)
	s.userCodes[code.UserCode] = code.DeviceCode
	return nil
}

// GetDeviceCode returns the record for a device code.
func (s *Store) GetDeviceCode(ctx context.Context, deviceCode string) (_ *storage.DeviceCode, err error) {
	_, done := s.op(ctx, "get_device_code")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deviceCodes[deviceCode]
	if !ok {
		return nil, storage.ErrDeviceCodeNotFound
	}
	return cloneDevice(d), nil
}

// GetPendingDeviceCodeByUserCode only matches unexpired pending codes.
func (s *Store) GetPendingDeviceCodeByUserCode(ctx context.Context, userCode string) (_ *storage.DeviceCode, err error) {
	_, done := s.op(ctx, "get_device_code_by_user_code")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deviceCodes[s.userCodes[userCode]]
	if !ok || !d.IsPending() || security.IsExpired(d.ExpiresAt, s.now()) {
		return nil, storage.ErrDeviceCodeNotFound
	}
	return cloneDevice(d), nil
}

// AuthorizeDeviceCode binds a pending code to a user.
func (s *Store) AuthorizeDeviceCode(ctx context.Context, deviceCode, userID string) (err error) {
	_, done := s.op(ctx, "authorize_device_code")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deviceCodes[deviceCode]
	if !ok {
		return storage.ErrDeviceCodeNotFound
	}
	if !d.IsPending() || security.IsExpired(d.ExpiresAt, s.now()) {
		return storage.ErrDeviceCodeNotPending
	}
	d.Authorized = true
	d.UserID = userID
	return nil
}

// ConsumeDeviceCode flips Consumed on an authorized, unexpired code.
func (s *Store) ConsumeDeviceCode(ctx context.Context, deviceCode string) (_ bool, err error) {
	_, done := s.op(ctx, "consume_device_code")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deviceCodes[deviceCode]
	if !ok {
		return false, storage.ErrDeviceCodeNotFound
	}
	if !d.Authorized || d.Consumed || security.IsExpired(d.ExpiresAt, s.now()) {
		return false, nil
	}
	d.Consumed = true
	return true, nil
}

// DeleteDeviceCodes removes a user's device codes.
func (s *Store) DeleteDeviceCodes(ctx context.Context, userID, clientID string) (err error) {
	_, done := s.op(ctx, "delete_device_codes")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, d := range s.deviceCodes {
		if owned(d.UserID, d.ClientID, userID, clientID) {
			delete(s.userCodes, d.UserCode)
			delete(s.deviceCodes, k)
		}
	}
	return nil
}

// ============================================================
// ConsentStore
// ============================================================

// GrantConsent upserts the consent record.
func (s *Store) GrantConsent(ctx context.Context, consent *storage.Consent) (err error) {
	_, done := s.op(ctx, "grant_consent")
	defer func() { done(err) }()

	if consent == nil || consent.UserID == "" || consent.ClientID == "" {
		return fmt.Errorf("consent user and client cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *consent
	cp.Scopes = slices.Clone(consent.Scopes)
	if cp.GrantedAt.IsZero() {
		cp.GrantedAt = s.now()
	}
	s.consents[consentKey{consent.UserID, consent.ClientID}] = &cp
	return nil
}

// GetConsent returns the consent record of a user for a client.
func (s *Store) GetConsent(ctx context.Context, userID, clientID string) (_ *storage.Consent, err error) {
	_, done := s.op(ctx, "get_consent")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[consentKey{userID, clientID}]
	if !ok {
		return nil, storage.ErrConsentNotFound
	}
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp, nil
}

// ============================================================
// Cleanup
// ============================================================

// DeleteExpired removes expired codes and tokens, and device codes expired for
// longer than storage.ExpiredDeviceCodeRetention.
func (s *Store) DeleteExpired(ctx context.Context) (_ int, err error) {
	_, done := s.op(ctx, "delete_expired")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, c := range s.codes {
		if security.IsExpired(c.ExpiresAt, now) {
			delete(s.codes, k)
			removed++
		}
	}
	for k, t := range s.accessTokens {
		if security.IsExpired(t.ExpiresAt, now) {
			delete(s.accessTokens, k)
			removed++
		}
	}
	for k, t := range s.refreshTokens {
		if security.IsExpired(t.ExpiresAt, now) {
			delete(s.refreshTokens, k)
			removed++
		}
	}
	for k, d := range s.deviceCodes {
		if security.IsExpired(d.ExpiresAt.Add(storage.ExpiredDeviceCodeRetention), now) {
			delete(s.userCodes, d.UserCode)
			delete(s.deviceCodes, k)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			if n, _ := s.DeleteExpired(context.Background()); n > 0 {
				s.logger.Debug("Removed expired records", "count", n)
			}
		}
	}
}

// owned reports whether a record of (recUser, recClient) belongs to userID,
// optionally narrowed to clientID.
func owned(recUser, recClient, userID, clientID string) bool {
	return recUser == userID && (clientID == "" || recClient == clientID)
}

func cloneClient(c *storage.Client) *storage.Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.Scopes = slices.Clone(c.Scopes)
	cp.GrantTypes = slices.Clone(c.GrantTypes)
	return &cp
}

func cloneRefresh(t *storage.RefreshToken) *storage.RefreshToken {
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	return &cp
}

func cloneDevice(d *storage.DeviceCode) *storage.DeviceCode {
	cp := *d
	cp.Scopes = slices.Clone(d.Scopes)
	return &cp
}
