package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Access and refresh tokens are both HS256 JWTs whose payload is only the
// user id. Roles and permissions are never embedded: they are re-resolved
// from the permission store on every request, so a token can never outlive
// a revoked role.

// NewAccessToken signs a short-lived access token bound to a user id.
func NewAccessToken(userID int64, secret string, ttl time.Duration) (string, error) {
	return signToken(userID, secret, ttl)
}

// NewRefreshToken signs a longer-lived refresh token bound to a user id.
// The caller is responsible for persisting it as a session row.
func NewRefreshToken(userID int64, secret string, ttl time.Duration) (string, error) {
	return signToken(userID, secret, ttl)
}

func signToken(userID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token's signature and expiry and returns the embedded
// user id. Raw crypto errors are collapsed into ErrTokenExpired or
// ErrTokenInvalid; nothing more specific ever reaches a caller.
func ParseToken(tokenString, secret string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}
	if !token.Valid {
		return 0, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}
