package server

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

// User codes are drawn from consonants that survive being read aloud or
// typed on a remote control.
const (
	userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"
	userCodeLength   = 8
)

// ErrInvalidUserCode is returned when a user code does not resolve to a
// pending device authorization.
var ErrInvalidUserCode = errors.New("invalid or expired user code")

// DeviceAuthorizationRequest starts a device flow.
type DeviceAuthorizationRequest struct {
	ClientID     string
	ClientSecret string
	Scope        string

	// VerificationURI is the absolute URL of the device verification page.
	VerificationURI string

	ClientIP string
}

// DeviceAuthorizationResponse is the RFC 8628 section 3.2 response.
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// DeviceAuthorization registers a new device code.
func (s *Server) DeviceAuthorization(ctx context.Context, req *DeviceAuthorizationRequest) (*DeviceAuthorizationResponse, error) {
	ctx, span := s.startSpan(ctx, "oauth.device_authorization")
	resp, err := s.deviceAuthorization(ctx, req)
	finishSpan(span, err)
	return resp, err
}

func (s *Server) deviceAuthorization(ctx context.Context, req *DeviceAuthorizationRequest) (*DeviceAuthorizationResponse, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.Scope == "" {
		return nil, ErrInvalidRequest("scope is required")
	}

	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.IsPublic() {
		if req.ClientSecret == "" || !security.VerifySecret(client.ClientSecretHash, req.ClientSecret) {
			s.clientAuthFailed(ctx, client.ClientID, req.ClientIP, "invalid client secret")
			return nil, ErrInvalidClient("client authentication failed")
		}
	}
	if !client.AllowsGrant(storage.GrantTypeDeviceCode) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the device grant")
	}
	scopes, err := resolveScopes(req.Scope, client)
	if err != nil {
		return nil, err
	}

	userCode, err := generateUserCode()
	if err != nil {
		s.Logger.Error("Failed to generate user code", "error", err)
		return nil, ErrServerError("internal error")
	}

	now := s.now()
	code := &storage.DeviceCode{
		ID:         uuid.NewString(),
		DeviceCode: generateRandomToken(),
		UserCode:   userCode,
		ClientID:   client.ClientID,
		Scopes:     scopes,
		ExpiresAt:  now.Add(time.Duration(s.Config.DeviceCodeTTL) * time.Second),
		Interval:   s.Config.DeviceCodeInterval,
		CreatedAt:  now,
	}
	if err := s.store.SaveDeviceCode(ctx, code); err != nil {
		return nil, s.internalError("save device code", err)
	}

	s.Auditor.LogEvent(security.Event{
		Type:      security.EventDeviceCodeIssued,
		ClientID:  client.ClientID,
		IPAddress: req.ClientIP,
		Details:   map[string]any{"scope": util.JoinScopes(scopes)},
	})
	if m := s.metrics(); m != nil {
		m.RecordDeviceAuthorization(ctx, client.ClientID)
	}

	return &DeviceAuthorizationResponse{
		DeviceCode:              code.DeviceCode,
		UserCode:                code.UserCode,
		VerificationURI:         req.VerificationURI,
		VerificationURIComplete: req.VerificationURI + "?user_code=" + url.QueryEscape(code.UserCode),
		ExpiresIn:               s.Config.DeviceCodeTTL,
		Interval:                code.Interval,
	}, nil
}

// LookupUserCode resolves a user-entered code to its pending device
// authorization.
func (s *Server) LookupUserCode(ctx context.Context, userCode string) (*storage.DeviceCode, error) {
	normalized := NormalizeUserCode(userCode)
	if normalized == "" {
		return nil, ErrInvalidUserCode
	}
	pending, err := s.store.GetPendingDeviceCodeByUserCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return nil, ErrInvalidUserCode
		}
		return nil, s.internalError("get device code by user code", err)
	}
	if security.IsExpired(pending.ExpiresAt, s.now()) {
		return nil, ErrInvalidUserCode
	}
	return pending, nil
}

// AuthorizeDevice approves the device authorization behind userCode for
// userID.
func (s *Server) AuthorizeDevice(ctx context.Context, userCode, userID, clientIP string) (*storage.DeviceCode, error) {
	pending, err := s.LookupUserCode(ctx, userCode)
	if err != nil {
		return nil, err
	}
	if err := s.store.AuthorizeDeviceCode(ctx, pending.DeviceCode, userID); err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) || errors.Is(err, storage.ErrDeviceCodeNotPending) {
			return nil, ErrInvalidUserCode
		}
		return nil, s.internalError("authorize device code", err)
	}
	pending.UserID = userID
	pending.Authorized = true

	s.Auditor.LogEvent(security.Event{
		Type:      security.EventDeviceAuthorized,
		UserID:    userID,
		ClientID:  pending.ClientID,
		IPAddress: clientIP,
	})
	return pending, nil
}

func (s *Server) deviceCodeGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.DeviceCode == "" {
		return nil, ErrInvalidRequest("device_code is required")
	}

	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.ClientIP, false)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(storage.GrantTypeDeviceCode) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the device grant")
	}

	resp, result, err := s.exchangeDeviceCode(ctx, client, req)
	if m := s.metrics(); m != nil {
		m.RecordDevicePoll(ctx, client.ClientID, result)
	}
	return resp, err
}

// exchangeDeviceCode returns the poll outcome label alongside the result.
func (s *Server) exchangeDeviceCode(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, string, error) {
	code, err := s.store.GetDeviceCode(ctx, req.DeviceCode)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return nil, "invalid", ErrInvalidGrant("invalid device code")
		}
		return nil, "error", s.internalError("get device code", err)
	}
	if code.Consumed || code.ClientID != client.ClientID {
		return nil, "invalid", ErrInvalidGrant("invalid device code")
	}
	if security.IsExpired(code.ExpiresAt, s.now()) {
		return nil, "expired", ErrExpiredToken("device code expired")
	}
	if !code.Authorized {
		return nil, "pending", ErrAuthorizationPending("the user has not yet approved this device")
	}

	ok, err := s.store.ConsumeDeviceCode(ctx, code.DeviceCode)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceCodeNotFound) {
			return nil, "invalid", ErrInvalidGrant("invalid device code")
		}
		return nil, "error", s.internalError("consume device code", err)
	}
	if !ok {
		return nil, "invalid", ErrInvalidGrant("invalid device code")
	}

	user, err := s.ResolveUser(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, "invalid", ErrInvalidGrant("resource owner no longer exists")
		}
		return nil, "error", s.internalError("get user", err)
	}

	resp, err := s.issueUserTokens(ctx, req.Issuer, client, user, code.Scopes, code.Scopes, nil)
	if err != nil {
		return nil, "error", err
	}
	s.Auditor.LogTokenIssued(user.ID, client.ClientID, req.ClientIP, req.GrantType, resp.Scope)
	return resp, "issued", nil
}

// generateUserCode returns a code formatted XXXX-XXXX.
func generateUserCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(userCodeAlphabet)))
	var b strings.Builder
	for i := 0; i < userCodeLength; i++ {
		if i == userCodeLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(userCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeUserCode upper-cases a user-entered code, drops spaces and
// dashes and re-inserts the dash. Input of the wrong length yields "".
func NormalizeUserCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	raw := b.String()
	if len(raw) != userCodeLength {
		return ""
	}
	return raw[:userCodeLength/2] + "-" + raw[userCodeLength/2:]
}
