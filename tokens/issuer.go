package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/giantswarm/oauth-engine/internal/util"
	"github.com/giantswarm/oauth-engine/storage"
)

// TokenType is carried in the token_type claim of every issued JWT.
type TokenType string

const (
	AccessToken  TokenType = "ACCESS_TOKEN"
	IDToken      TokenType = "ID_TOKEN"
	RefreshToken TokenType = "REFRESH_TOKEN"
)

// Claim names set by the issuer besides the registered ones.
const (
	ClaimScope             = "scope"
	ClaimTokenType         = "token_type"
	ClaimName              = "name"
	ClaimPreferredUsername = "preferred_username"
	ClaimEmail             = "email"
)

// ClaimCustomizer returns extra claims for a token. It runs after the
// standard claims are set and may overwrite them, except token_type and jti
// which are always applied last. userID is empty for client_credentials.
type ClaimCustomizer func(userID string, client *storage.Client) map[string]any

// IssueParams describes one token to mint.
type IssueParams struct {
	Issuer   string
	Subject  string
	Audience string
	Scopes   []string
	TTL      time.Duration
	Type     TokenType

	// Client and User are passed to the claim customizer; User also feeds
	// the profile and email claims of ID tokens.
	Client *storage.Client
	User   *storage.User
}

// Issuer signs JWTs with a single RSA key.
type Issuer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	customizer ClaimCustomizer
	now        func() time.Time
	logger     *slog.Logger
}

// NewIssuer loads the configured key pair, or generates one when no private
// key path is set.
func NewIssuer(cfg KeyConfig, logger *slog.Logger) (*Issuer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		key *rsa.PrivateKey
		err error
	)
	if cfg.PrivateKeyPath != "" {
		key, err = LoadPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("No signing key configured, generating an ephemeral RSA key; tokens will not survive a restart")
		key, err = GenerateKey()
		if err != nil {
			return nil, err
		}
	}

	pub := &key.PublicKey
	if cfg.PublicKeyPath != "" {
		pub, err = LoadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		if !pub.Equal(&key.PublicKey) {
			return nil, errors.New("public key does not match private key")
		}
	}

	issuer, err := NewIssuerFromKey(key, cfg.KeyID)
	if err != nil {
		return nil, err
	}
	issuer.publicKey = pub
	issuer.logger = logger
	return issuer, nil
}

// NewIssuerFromKey wraps an existing key. A random key ID is used when keyID is empty.
func NewIssuerFromKey(key *rsa.PrivateKey, keyID string) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if keyID == "" {
		keyID = uuid.NewString()
	}
	return &Issuer{
		privateKey: key,
		publicKey:  &key.PublicKey,
		keyID:      keyID,
		now:        time.Now,
		logger:     slog.Default(),
	}, nil
}

// SetClaimCustomizer installs the hook run on every issued token.
func (i *Issuer) SetClaimCustomizer(fn ClaimCustomizer) {
	i.customizer = fn
}

// SetClock replaces the time source used for iat, exp and verification.
func (i *Issuer) SetClock(now func() time.Time) {
	if now != nil {
		i.now = now
	}
}

// KeyID returns the published key identifier.
func (i *Issuer) KeyID() string {
	return i.keyID
}

// PublicKey returns the verification key.
func (i *Issuer) PublicKey() *rsa.PublicKey {
	return i.publicKey
}

// Verifier returns a verifier bound to the issuer's public key.
func (i *Issuer) Verifier() *Verifier {
	v := NewVerifier(i.publicKey)
	v.now = i.now
	return v
}

// Signed is an issued token together with the claims a store needs to
// persist it.
type Signed struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue signs a token described by p.
func (i *Issuer) Issue(p IssueParams) (string, error) {
	signed, err := i.Sign(p)
	if err != nil {
		return "", err
	}
	return signed.Value, nil
}

// Sign is Issue returning the token ID and validity window as well.
func (i *Issuer) Sign(p IssueParams) (*Signed, error) {
	if p.Type == "" {
		return nil, errors.New("token type is required")
	}
	now := i.now()
	expiresAt := now.Add(p.TTL)

	claims := jwt.MapClaims{
		"iss":      p.Issuer,
		"sub":      p.Subject,
		"iat":      now.Unix(),
		"exp":      expiresAt.Unix(),
		ClaimScope: util.JoinScopes(p.Scopes),
	}
	if p.Audience != "" {
		claims["aud"] = p.Audience
	}

	if i.customizer != nil {
		userID := ""
		if p.User != nil {
			userID = p.User.ID
		}
		for k, v := range i.customizer(userID, p.Client) {
			claims[k] = v
		}
	}

	claims[ClaimTokenType] = string(p.Type)

	if p.Type == IDToken && p.User != nil {
		if util.HasScope(p.Scopes, "profile") {
			claims[ClaimName] = p.User.DisplayName()
			claims[ClaimPreferredUsername] = p.User.Username
		}
		if util.HasScope(p.Scopes, "email") {
			claims[ClaimEmail] = p.User.Email
		}
	}

	jti := uuid.NewString()
	claims["jti"] = jti

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.keyID

	value, err := token.SignedString(i.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", p.Type, err)
	}
	return &Signed{Value: value, ID: jti, IssuedAt: now, ExpiresAt: expiresAt}, nil
}
