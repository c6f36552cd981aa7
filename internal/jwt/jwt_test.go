package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCreateAndVerify(t *testing.T) {
	Setup("test-secret-0123456789", false)

	tests := []struct {
		name       string
		remember   bool
		hasExpires bool
	}{
		{name: "Session cookie", remember: false, hasExpires: false},
		{name: "Remembered", remember: true, hasExpires: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie, err := CreateToken(tt.remember, 42)
			if err != nil {
				t.Fatal(err)
			}
			if cookie.Name != CookieName || !cookie.HttpOnly {
				t.Errorf("unexpected cookie %+v", cookie)
			}
			if cookie.Expires.IsZero() == tt.hasExpires {
				t.Errorf("expires %v", cookie.Expires)
			}

			token, err := VerifyToken(cookie.Value)
			if err != nil {
				t.Fatal(err)
			}
			if token.UserID != 42 || token.Remember != tt.remember {
				t.Errorf("claims %+v", token)
			}
			if NeedsRenewal(token, time.Now()) {
				t.Error("fresh token needs renewal")
			}
			if !NeedsRenewal(token, time.Now().Add(RenewAfter)) {
				t.Error("old token doesn't need renewal")
			}
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	Setup("test-secret-0123456789", false)

	sign := func(method jwt.SigningMethod, key any, claims UserToken) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	now := time.Now()
	valid := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}
	expired := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now.Add(-2 * time.Hour)), ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))}

	tests := []struct {
		name  string
		token string
	}{
		{name: "Garbage", token: "not.a.token"},
		{name: "Wrong key", token: sign(jwt.SigningMethodHS512, []byte("another-secret"), UserToken{UserID: 1, RegisteredClaims: valid})},
		{name: "Wrong algorithm", token: sign(jwt.SigningMethodHS256, []byte("test-secret-0123456789"), UserToken{UserID: 1, RegisteredClaims: valid})},
		{name: "Expired", token: sign(jwt.SigningMethodHS512, []byte("test-secret-0123456789"), UserToken{UserID: 1, RegisteredClaims: expired})},
		{name: "No expiry", token: sign(jwt.SigningMethodHS512, []byte("test-secret-0123456789"), UserToken{UserID: 1})},
		{name: "No user", token: sign(jwt.SigningMethodHS512, []byte("test-secret-0123456789"), UserToken{RegisteredClaims: valid})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyToken(tt.token); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
