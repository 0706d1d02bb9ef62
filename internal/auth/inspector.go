package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshSkew is how long before expiry a token counts as expiring.
const DefaultRefreshSkew = 2 * time.Minute

// Inspector reads the unverified claims of a bearer token. It never checks
// signatures: the server is the verifier.
type Inspector struct {
	skew time.Duration
	now  func() time.Time
}

// NewInspector creates an inspector with the given refresh skew. A
// non-positive skew selects DefaultRefreshSkew.
func NewInspector(skew time.Duration) *Inspector {
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	return &Inspector{skew: skew, now: time.Now}
}

// WithClock returns a copy of the inspector that reads time from now.
func (i *Inspector) WithClock(now func() time.Time) *Inspector {
	cp := *i
	cp.now = now
	return &cp
}

// Skew returns the configured refresh skew.
func (i *Inspector) Skew() time.Duration { return i.skew }

// IsExpiringSoon reports whether token expires within the skew window.
func (i *Inspector) IsExpiringSoon(token string) bool {
	return expiringAt(token, i.skew, i.now())
}

// IsExpiringSoon reports whether token's exp claim is at or within skew of
// the current time. Undecodable tokens and tokens without a numeric exp are
// never expiring, so a malformed token cannot cause a refresh storm.
func IsExpiringSoon(token string, skew time.Duration) bool {
	return expiringAt(token, skew, time.Now())
}

func expiringAt(token string, skew time.Duration, now time.Time) bool {
	claims, ok := Claims(token)
	if !ok {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Add(-skew))
}

// Claims decodes the payload segment of token without verifying it.
func Claims(token string) (jwt.MapClaims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, false
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims == nil {
		return nil, false
	}
	return claims, true
}

// Subject returns the sub claim of token, or "" when absent.
func Subject(token string) string {
	claims, ok := Claims(token)
	if !ok {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// ExpiresAt returns the exp claim of token, if present and numeric.
func ExpiresAt(token string) (time.Time, bool) {
	claims, ok := Claims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
