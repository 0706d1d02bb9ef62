package testutil

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the access and refresh token claims issued by the fake API.
type Claims struct {
	Email string `json:"email,omitempty"`
	Kind  string `json:"kind"`
	jwt.RegisteredClaims
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer using secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Access signs an access token for sub that expires after ttl. A negative
// ttl yields an already expired token.
func (i *TokenIssuer) Access(sub, email string, ttl time.Duration) (string, error) {
	return i.sign(sub, email, kindAccess, ttl)
}

// Refresh signs a refresh token for sub.
func (i *TokenIssuer) Refresh(sub string, ttl time.Duration) (string, error) {
	return i.sign(sub, "", kindRefresh, ttl)
}

func (i *TokenIssuer) sign(sub, email, kind string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "storefront-fake",
			// Two tokens minted in the same second must still differ.
			ID: uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify parses token and checks its signature, expiry and kind.
func (i *TokenIssuer) Verify(token, kind string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s token: %w", kind, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Kind != kind {
		return nil, fmt.Errorf("invalid %s token claims", kind)
	}
	return claims, nil
}
