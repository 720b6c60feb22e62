// Package auth inspects the bearer session token issued by the external
// auth service. The client does not verify signatures (that is the
// server's job); it only decodes claims to learn the local user id and to
// refuse dialing with an expired credential.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpired   = errors.New("auth: credential expired")
	ErrMalformed = errors.New("auth: malformed credential")
)

// Claims is the subset of token claims the client cares about.
type Claims struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes the token without signature verification and returns
// its claims. Returns ErrExpired when the token is past its expiry.
func Inspect(token string) (Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	c := Claims{UserID: tc.Subject, Username: tc.Username}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
		if time.Now().After(c.ExpiresAt) {
			return c, ErrExpired
		}
	}
	return c, nil
}
