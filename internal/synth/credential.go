package synth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// CredentialSource produces the bearer token attached to every synthesis
// request. Two concrete sources are supported: a static API key, and a
// short-lived HS256 JWT (matching the access/secret-key JWT scheme used
// by one of the two real provider gateways this client is grounded on).
type CredentialSource interface {
	Token() (string, error)
}

// StaticToken is a CredentialSource that always returns the same bearer
// value, for providers that accept a long-lived API key directly.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// jwtClaims mirrors the {ak, iat, exp} payload shape: access key plus a
// one-hour issued-at/expiry window.
type jwtClaims struct {
	AccessKey string `json:"ak"`
	jwt.RegisteredClaims
}

// JWTCredential issues short-lived HS256 bearer tokens signed with a
// secret key, re-minting a new token once the previous one is within its
// last minute of validity.
type JWTCredential struct {
	accessKey string
	secretKey []byte
	ttl       time.Duration

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewJWTCredential constructs a credential source that mints tokens with
// a 1-hour TTL, matching the reference JWT generator's exp = iat + 3600.
func NewJWTCredential(accessKey, secretKey string) *JWTCredential {
	return &JWTCredential{
		accessKey: accessKey,
		secretKey: []byte(secretKey),
		ttl:       time.Hour,
	}
}

func (c *JWTCredential) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" && time.Until(c.expiresAt) > time.Minute {
		return c.cached, nil
	}

	now := time.Now()
	exp := now.Add(c.ttl)
	claims := jwtClaims{
		AccessKey: c.accessKey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secretKey)
	if err != nil {
		return "", fmt.Errorf("synth: sign bearer jwt: %w", err)
	}

	c.cached = signed
	c.expiresAt = exp
	return signed, nil
}
