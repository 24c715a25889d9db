// Package auth inspects the bearer token the backend issues at login. The
// client never verifies signatures; it only reads the claims it needs to fail
// fast on an expired session.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in; run `sendme login`")
	ErrSessionExpired = errors.New("session expired; run `sendme login` again")
)

// DefaultSkew is how early a token is treated as expired.
const DefaultSkew = 30 * time.Second

type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
	// Opaque is set when the token is not a JWT. Opaque tokens carry no
	// expiry and are passed through unchanged.
	Opaque bool
}

func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenInfo{}, ErrNotLoggedIn
	}
	if strings.Count(token, ".") != 2 {
		return TokenInfo{Opaque: true}, nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse token: %w", err)
	}
	info := TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("token expiry: %w", err)
	}
	if exp != nil {
		info.ExpiresAt = exp.Time.UTC()
	}
	return info, nil
}

// Expired reports whether the token's exp claim is before now+skew. Tokens
// without an exp claim never expire.
func (i TokenInfo) Expired(now time.Time, skew time.Duration) bool {
	if i.Opaque || i.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(i.ExpiresAt)
}

// Check returns ErrNotLoggedIn for an empty token and ErrSessionExpired for
// one whose exp claim has passed.
func Check(token string, now time.Time) error {
	info, err := Inspect(token)
	if err != nil {
		return err
	}
	if info.Expired(now, DefaultSkew) {
		return ErrSessionExpired
	}
	return nil
}
