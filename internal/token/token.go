// Package token mints and verifies the HS256 bearer tokens the daemons use
// to authenticate with each other.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "livecache"

var ErrInvalidToken = errors.New("token: invalid")

// Claims is the token payload: standard registered claims plus the scope
// the bearer is allowed to act in.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// Mint signs a token for subject, valid for ttl.
func Mint(secret []byte, subject, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: scope,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify parses and validates a signed token.
func Verify(secret []byte, raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Bearer extracts the token from an Authorization header value.
func Bearer(authorization string) (string, bool) {
	raw := strings.TrimPrefix(authorization, "Bearer ")
	if raw == authorization {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// AuthFn adapts Verify to the cache handler auth hook: it accepts requests
// bearing a valid token signed with secret.
func AuthFn(secret []byte) func(ctx context.Context, authorization string) bool {
	return func(_ context.Context, authorization string) bool {
		raw, ok := Bearer(authorization)
		if !ok {
			return false
		}
		_, err := Verify(secret, raw)
		return err == nil
	}
}
