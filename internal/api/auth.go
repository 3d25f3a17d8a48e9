package api

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned when a JWT fails signature or claim checks.
var ErrTokenInvalid = errors.New("api: invalid token")

// claims are the JWT claims accepted on mutating routes.
//
// Tokens are minted out-of-band with the shared secret (occulog has no
// user database); only signature, expiry, and a non-empty subject are
// enforced here.
type claims struct {
	jwt.RegisteredClaims
}

// parseToken validates a JWT access token signed with HS256.
func parseToken(tokenString, secret string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return c, nil
}
