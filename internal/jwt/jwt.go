package jwt

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "session"
	issuer     = "kiselgram"

	// RenewAfter is how old a token gets before the middleware issues a fresh one.
	RenewAfter = 15 * time.Minute

	sessionLifetime  = 24 * time.Hour
	rememberLifetime = 4 * 7 * 24 * time.Hour
)

var errInvalidToken = errors.New("invalid token")

type UserToken struct {
	UserID   int64 `json:"userID"`
	Remember bool  `json:"rem"`
	jwt.RegisteredClaims
}

var (
	jwtSecret []byte
	isHttps   bool
)

func Setup(key string, https bool) {
	jwtSecret = []byte(key)
	isHttps = https
}

func sessionCookie(value string) http.Cookie {
	return http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHttps,
		SameSite: http.SameSiteLaxMode,
	}
}

// CreateToken signs a session for userID. A remembered session outlives the
// browser session, the other one is a plain session cookie.
func CreateToken(rememberMe bool, userID int64) (http.Cookie, error) {
	lifetime := sessionLifetime
	if rememberMe {
		lifetime = rememberLifetime
	}

	issuedAt := time.Now().UTC()
	claims := UserToken{
		UserID:   userID,
		Remember: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(jwtSecret)
	if err != nil {
		return http.Cookie{}, err
	}

	cookie := sessionCookie(signed)
	if rememberMe {
		cookie.Expires = claims.ExpiresAt.Time
	}
	return cookie, nil
}

// VerifyToken checks the signature and expiry of a session token. Only HS512
// tokens are accepted.
func VerifyToken(tokenString string) (UserToken, error) {
	var claims UserToken
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return UserToken{}, err
	}
	if claims.UserID == 0 {
		return UserToken{}, errInvalidToken
	}
	return claims, nil
}

// NeedsRenewal reports whether the token was issued more than RenewAfter ago.
func NeedsRenewal(token UserToken, now time.Time) bool {
	if token.IssuedAt == nil {
		return true
	}
	return now.UTC().Sub(token.IssuedAt.Time) >= RenewAfter
}

// DeleteCookie returns a cookie that makes the browser drop the session.
func DeleteCookie() *http.Cookie {
	cookie := sessionCookie("")
	cookie.Expires = time.Unix(0, 0)
	cookie.MaxAge = -1
	return &cookie
}
