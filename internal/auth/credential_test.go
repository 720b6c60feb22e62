package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintToken(t *testing.T, subject, username string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{}
	if subject != "" {
		claims["sub"] = subject
	}
	if username != "" {
		claims["username"] = username
	}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestInspectDecodesClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := mintToken(t, "u42", "marat", exp)

	c, err := Inspect(token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if c.UserID != "u42" || c.Username != "marat" {
		t.Fatalf("claims = %+v", c)
	}
	if !c.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", c.ExpiresAt, exp)
	}
}

func TestInspectExpired(t *testing.T) {
	token := mintToken(t, "u42", "", time.Now().Add(-time.Minute))
	if _, err := Inspect(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestInspectMalformed(t *testing.T) {
	noSubject := mintToken(t, "", "nobody", time.Time{})
	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"missing subject", noSubject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Inspect(tc.token); !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestInspectNoExpiryClaim(t *testing.T) {
	token := mintToken(t, "u1", "", time.Time{})
	c, err := Inspect(token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !c.ExpiresAt.IsZero() {
		t.Fatalf("expiry = %v, want zero", c.ExpiresAt)
	}
}
