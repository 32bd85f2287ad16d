package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenUser is the subset of account data embedded in issued tokens.
type TokenUser struct {
	ID       string
	Username string
	Email    string
	Role     string
}

// IssueToken signs an HS256 JWT for the given user with the configured
// lifetime.
func IssueToken(signingKey []byte, expiry time.Duration, u TokenUser) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
