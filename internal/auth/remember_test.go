package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mportier/vaultgate/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:            "user1",
		Email:         "user@example.com",
		SecurityStamp: "stamp-1",
	}
}

func TestRememberTokenManager_GenerateAndVerify(t *testing.T) {
	rm := NewRememberTokenManager("secret", time.Hour)
	user := testUser()

	token, err := rm.Generate(user, "dev-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, rm.Verify(user, "dev-1", token))
}

func TestRememberTokenManager_Verify_WrongDevice(t *testing.T) {
	rm := NewRememberTokenManager("secret", time.Hour)
	user := testUser()

	token, err := rm.Generate(user, "dev-1")
	require.NoError(t, err)

	assert.False(t, rm.Verify(user, "dev-2", token))
}

func TestRememberTokenManager_Verify_Expired(t *testing.T) {
	rm := NewRememberTokenManager("secret", -time.Minute)
	user := testUser()

	token, err := rm.Generate(user, "dev-1")
	require.NoError(t, err)

	assert.False(t, NewRememberTokenManager("secret", time.Hour).Verify(user, "dev-1", token))
}

func TestRememberTokenManager_Verify_SecurityStampRotation(t *testing.T) {
	rm := NewRememberTokenManager("secret", time.Hour)
	user := testUser()

	token, err := rm.Generate(user, "dev-1")
	require.NoError(t, err)

	user.SecurityStamp = "stamp-2"
	assert.False(t, rm.Verify(user, "dev-1", token), "stamp rotation must invalidate outstanding tokens")
}

func TestRememberTokenManager_Verify_Garbage(t *testing.T) {
	rm := NewRememberTokenManager("secret", time.Hour)
	user := testUser()

	assert.False(t, rm.Verify(user, "dev-1", "not-a-jwt"))
	assert.False(t, rm.Verify(user, "dev-1", ""))
}
