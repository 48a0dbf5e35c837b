package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_AccessToken_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, time.Hour)
	user := testUser()

	token, err := tm.GenerateAccessToken(user, map[string]string{
		"device":         "dev-1",
		"organizationId": "org1",
	})
	require.NoError(t, err)

	claims, err := tm.Validate(user, token)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, "dev-1", claims.DeviceIdentifier)
	assert.Equal(t, "org1", claims.OrganizationID)
}

func TestTokenManager_RefreshToken_Type(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, time.Hour)
	user := testUser()

	token, err := tm.GenerateRefreshToken(user, nil)
	require.NoError(t, err)

	claims, err := tm.Validate(user, token)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)
}

func TestTokenManager_Validate_SecurityStampRotation(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, time.Hour)
	user := testUser()

	token, err := tm.GenerateAccessToken(user, nil)
	require.NoError(t, err)

	user.SecurityStamp = "stamp-2"
	_, err = tm.Validate(user, token)
	assert.Error(t, err)
}

func TestTokenManager_Validate_WrongUser(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, time.Hour)
	user := testUser()

	token, err := tm.GenerateAccessToken(user, nil)
	require.NoError(t, err)

	other := testUser()
	other.ID = "user2"
	_, err = tm.Validate(other, token)
	assert.Error(t, err)
}

func TestTokenManager_Validate_Expired(t *testing.T) {
	tm := NewTokenManager("secret", -time.Minute, time.Hour)
	user := testUser()

	token, err := tm.GenerateAccessToken(user, nil)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", 15*time.Minute, time.Hour).Validate(user, token)
	assert.Error(t, err)
}

func TestTokenManager_ParseUnverified(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, time.Hour)
	user := testUser()

	token, err := tm.GenerateAccessToken(user, nil)
	require.NoError(t, err)

	claims, err := tm.ParseUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	_, err = tm.ParseUnverified("garbage")
	assert.Error(t, err)
}

func TestSessionTokenManager_SsoGrant_RoundTrip(t *testing.T) {
	sm := NewSessionTokenManager("secret", 5*time.Minute)

	grant, err := sm.GenerateSsoGrant("user1", "org1")
	require.NoError(t, err)

	userID, orgID, err := sm.VerifySsoGrant(grant)
	require.NoError(t, err)
	assert.Equal(t, "user1", userID)
	assert.Equal(t, "org1", orgID)
}

func TestSessionTokenManager_SsoGrant_RejectsOtherPurposes(t *testing.T) {
	sm := NewSessionTokenManager("secret", 5*time.Minute)
	user := testUser()

	emailSession, err := sm.GenerateEmail2FASession(user)
	require.NoError(t, err)

	_, _, err = sm.VerifySsoGrant(emailSession)
	assert.Error(t, err, "an email-2fa session must not pass as an sso grant")
}

func TestSessionTokenManager_SsoGrant_Expired(t *testing.T) {
	sm := NewSessionTokenManager("secret", -time.Minute)

	grant, err := sm.GenerateSsoGrant("user1", "org1")
	require.NoError(t, err)

	_, _, err = NewSessionTokenManager("secret", 5*time.Minute).VerifySsoGrant(grant)
	assert.Error(t, err)
}
