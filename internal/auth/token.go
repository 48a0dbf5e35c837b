package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mportier/vaultgate/internal/models"
)

// TokenClaims are the claims embedded in issued access and refresh tokens.
type TokenClaims struct {
	Type             string `json:"typ"`
	Email            string `json:"email,omitempty"`
	DeviceIdentifier string `json:"device,omitempty"`
	OrganizationID   string `json:"organizationId,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates the JWTs returned on successful
// authentication. Signing keys composite the service secret with the user's
// security stamp so stamp rotation invalidates outstanding tokens.
type TokenManager struct {
	secret        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        secret,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (tm *TokenManager) signingKey(securityStamp string) []byte {
	return []byte(tm.secret + securityStamp)
}

func (tm *TokenManager) generate(tokenType string, user *models.User, extraClaims map[string]string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		Type:  tokenType,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	claims.DeviceIdentifier = extraClaims["device"]
	claims.OrganizationID = extraClaims["organizationId"]

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.signingKey(user.SecurityStamp))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// GenerateAccessToken creates a short-lived access token carrying the
// device-identifier claim.
func (tm *TokenManager) GenerateAccessToken(user *models.User, claims map[string]string) (string, error) {
	return tm.generate("access", user, claims, tm.accessExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token.
func (tm *TokenManager) GenerateRefreshToken(user *models.User, claims map[string]string) (string, error) {
	return tm.generate("refresh", user, claims, tm.refreshExpiry)
}

// AccessTokenExpiry exposes the configured lifetime for the expires_in
// response field.
func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.accessExpiry
}

// Validate parses and verifies a token issued for the given user.
func (tm *TokenManager) Validate(user *models.User, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.signingKey(user.SecurityStamp), nil
	})
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	if !token.Valid || claims.Subject != user.ID {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}

// ParseUnverified extracts claims without signature verification, used by
// middleware to learn the subject before loading the user for full
// validation.
func (tm *TokenManager) ParseUnverified(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, models.ErrUnauthorized
	}
	if claims.Subject == "" {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}
