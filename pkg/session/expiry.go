package session

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// ExpiryHint is an advisory session lifetime extracted from an unverified
// bearer token. It only sizes the cache TTL. It is deliberately a distinct
// type from verified claims: no signature check happens here and the hint
// must never feed an authentication decision.
type ExpiryHint struct {
	unixMilli int64
}

// UnixMilli returns the hinted expiry in milliseconds since epoch.
func (h ExpiryHint) UnixMilli() int64 {
	return h.unixMilli
}

// Time returns the hinted expiry as a time.Time.
func (h ExpiryHint) Time() time.Time {
	return time.UnixMilli(h.unixMilli)
}

// DeriveExpiry reads the numeric exp claim (seconds since epoch) from the
// middle segment of a three-part dot-separated token, without verifying
// anything. Returns false when the token is malformed or carries no exp.
func DeriveExpiry(bearerToken string) (ExpiryHint, bool) {
	parts := strings.Split(bearerToken, ".")
	if len(parts) != 3 {
		return ExpiryHint{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return ExpiryHint{}, false
	}

	var claims struct {
		Exp *json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == nil {
		return ExpiryHint{}, false
	}

	exp, err := claims.Exp.Float64()
	if err != nil {
		return ExpiryHint{}, false
	}

	return ExpiryHint{unixMilli: int64(exp) * 1000}, true
}

// DefaultLifetime is the session lifetime used when no expiry hint is
// available.
const DefaultLifetime = 24 * time.Hour
