package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mportier/vaultgate/internal/models"
)

// SessionTokenManager issues the short-lived tokens that bridge multi-step
// flows: the email two-factor session token returned with a challenge, and
// the SSO grant exchanged at the token endpoint by authorization_code
// requests.
type SessionTokenManager struct {
	secret string
	expiry time.Duration
}

type sessionClaims struct {
	Purpose        string `json:"purpose"`
	Email          string `json:"email,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	jwt.RegisteredClaims
}

const (
	sessionPurposeEmail2FA = "email-2fa"
	sessionPurposeSsoGrant = "sso-grant"
)

func NewSessionTokenManager(secret string, expiry time.Duration) *SessionTokenManager {
	return &SessionTokenManager{secret: secret, expiry: expiry}
}

func (sm *SessionTokenManager) generate(purpose, subject, email, orgID string) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		Purpose:        purpose,
		Email:          email,
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(sm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func (sm *SessionTokenManager) parse(purpose, tokenString string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(sm.secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Purpose != purpose {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}

// GenerateEmail2FASession creates the session token returned alongside an
// email two-factor challenge.
func (sm *SessionTokenManager) GenerateEmail2FASession(user *models.User) (string, error) {
	return sm.generate(sessionPurposeEmail2FA, user.ID, user.Email, "")
}

// GenerateSsoGrant creates the grant an SSO callback hands to the client for
// exchange at the token endpoint.
func (sm *SessionTokenManager) GenerateSsoGrant(userID, organizationID string) (string, error) {
	return sm.generate(sessionPurposeSsoGrant, userID, "", organizationID)
}

// VerifySsoGrant validates an authorization_code grant and returns the
// subject user ID and the SSO organization ID it carries.
func (sm *SessionTokenManager) VerifySsoGrant(tokenString string) (userID, organizationID string, err error) {
	claims, err := sm.parse(sessionPurposeSsoGrant, tokenString)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.OrganizationID, nil
}
