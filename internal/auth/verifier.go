// Package auth resolves bearer credentials to user identities. Tokens are
// issued by the main app's session service; this side only verifies them.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/habitbloom/server/internal/domain/apperr"
)

// Verifier validates HS256-signed bearer tokens and extracts the user id
// from the subject claim.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier with the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the user id it carries.
// Any failure is reported as apperr.ErrAuth; the underlying cause stays in
// the wrap for logging.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.ErrAuth
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrAuth, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apperr.ErrAuth)
	}

	return subject, nil
}
