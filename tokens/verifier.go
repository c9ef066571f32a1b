package tokens

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/oauth-engine/internal/util"
)

// Claims is the verified claim set of a token.
type Claims jwt.MapClaims

// Subject returns the sub claim.
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// TokenType returns the token_type claim.
func (c Claims) TokenType() TokenType {
	s, _ := c[ClaimTokenType].(string)
	return TokenType(s)
}

// Scopes returns the scope claim split into entries.
func (c Claims) Scopes() []string {
	s, _ := c[ClaimScope].(string)
	return util.ParseScopes(s)
}

// ID returns the jti claim.
func (c Claims) ID() string {
	s, _ := c["jti"].(string)
	return s
}

// Verifier checks RS256 signatures against one public key.
type Verifier struct {
	key *rsa.PublicKey
	now func() time.Time
}

// NewVerifier returns a verifier for key.
func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key, now: time.Now}
}

// Verify parses and validates token. Any failure (malformed input, wrong
// algorithm, bad signature, expiry) yields (nil, false).
func (v *Verifier) Verify(token string) (Claims, bool) {
	if v == nil || v.key == nil || token == "" {
		return nil, false
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	return Claims(claims), true
}
