package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of a short-lived access token. Version is a copy
// of the user's AccessTokenVersion at issuance time; a token whose version no
// longer matches the live counter is dead regardless of its exp.
type AccessClaims struct {
	UserID  uint   `json:"user_id"`
	Role    string `json:"role"`
	Status  string `json:"status"`
	Version int    `json:"version"`
	jwt.RegisteredClaims
}

func SignAccessToken(userID uint, role, status string, version int, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := AccessClaims{
		UserID:  userID,
		Role:    role,
		Status:  status,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// AccessClaimsFromToken verifies signature and expiry. Any failure, be it a bad
// signature, an expired token or garbage input, comes back as a nil claims
// pointer with the error; callers treat them all as unauthenticated.
func AccessClaimsFromToken(tokenStr string, secret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return &claims, nil
}
