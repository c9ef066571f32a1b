package tokens

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
)

// JWK is the public half of an RSA signing key (RFC 7517).
type JWK struct {
	KeyType   string `json:"kty"`
	Use       string `json:"use"`
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid"`
	N         string `json:"n"`
	E         string `json:"e"`
}

// JWKSet is served at /.well-known/jwks.json.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKSet returns the JWKS document for the issuer's key.
func (i *Issuer) PublicJWKSet() JWKSet {
	return JWKSet{Keys: []JWK{publicJWK(i.publicKey, i.keyID)}}
}

func publicJWK(key *rsa.PublicKey, kid string) JWK {
	return JWK{
		KeyType:   "RSA",
		Use:       "sig",
		Algorithm: "RS256",
		KeyID:     kid,
		N:         base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:         base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
