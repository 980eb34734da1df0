package api

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken means a presented token failed verification.
var ErrInvalidToken = errors.New("invalid identity token")

// Claims is the expected token payload. Subject carries the user id;
// the core treats it as an opaque string.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenVerifier resolves an optional identity token to a user id. A nil
// verifier (or an empty secret) runs the server anonymously: tokens are
// ignored and every connection gets an empty user id.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for HMAC-signed tokens. An empty
// secret disables verification.
func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret)}
}

// UserID returns the user id for the given token. An absent token is
// anonymous, not an error; a present but unverifiable token is
// rejected.
func (v *TokenVerifier) UserID(token string) (string, error) {
	if v == nil || token == "" {
		return "", nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
