package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mportier/vaultgate/internal/models"
)

// RememberTokenManager issues and verifies remember-me second-factor tokens.
// Tokens are bound to the user's security stamp and the requesting device,
// so rotating the stamp or switching devices invalidates them.
type RememberTokenManager struct {
	secret string
	expiry time.Duration
}

type rememberClaims struct {
	DeviceIdentifier string `json:"device"`
	jwt.RegisteredClaims
}

func NewRememberTokenManager(secret string, expiry time.Duration) *RememberTokenManager {
	return &RememberTokenManager{secret: secret, expiry: expiry}
}

// signingKey composites the service secret with the user's security stamp.
func (rm *RememberTokenManager) signingKey(user *models.User) []byte {
	return []byte(rm.secret + user.SecurityStamp)
}

// Generate creates a remember token for the user on the given device.
func (rm *RememberTokenManager) Generate(user *models.User, deviceIdentifier string) (string, error) {
	now := time.Now()
	claims := &rememberClaims{
		DeviceIdentifier: deviceIdentifier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(rm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(rm.signingKey(user))
	if err != nil {
		return "", fmt.Errorf("failed to sign remember token: %w", err)
	}
	return signed, nil
}

// Verify reports whether the token is a valid, unexpired remember token for
// this user and device. Invalid or expired tokens simply verify false; the
// caller re-issues a challenge instead of treating this as a hard failure.
func (rm *RememberTokenManager) Verify(user *models.User, deviceIdentifier, tokenString string) bool {
	if tokenString == "" {
		return false
	}

	claims := &rememberClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return rm.signingKey(user), nil
	})
	if err != nil || !token.Valid {
		return false
	}

	return claims.Subject == user.ID && claims.DeviceIdentifier == deviceIdentifier
}
