package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mportier/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func duoProvider() *models.TwoFactorProvider {
	return &models.TwoFactorProvider{
		Enabled: true,
		MetaData: map[string]any{
			"Host": "api-xxxx.duosecurity.com",
			"IKey": "DIXXXXXXXXXXXXXXXXXX",
			"SKey": "duo-secret-key-duo-secret-key-duo-secret",
		},
	}
}

func TestDuoWebVerifier_Generate(t *testing.T) {
	verifier := NewDuoWebVerifier("application-key-application-key-application", "https://vault.example.com/duo-callback")
	user := NewTestUser("user1", "jane@example.com")

	params, err := verifier.Generate(context.Background(), duoProvider(), user)
	require.NoError(t, err)
	assert.Equal(t, "api-xxxx.duosecurity.com", params["Host"])

	signature := params["Signature"].(string)
	tx, app, found := strings.Cut(signature, ":")
	require.True(t, found)
	assert.True(t, strings.HasPrefix(tx, "TX|"))
	assert.True(t, strings.HasPrefix(app, "APP|"))
}

func TestDuoWebVerifier_Generate_IncompleteConfig(t *testing.T) {
	verifier := NewDuoWebVerifier("application-key", "https://vault.example.com/duo-callback")
	provider := &models.TwoFactorProvider{
		Enabled:  true,
		MetaData: map[string]any{"Host": "api-xxxx.duosecurity.com"},
	}

	assert.False(t, verifier.CanGenerate(provider))
	_, err := verifier.Generate(context.Background(), provider, NewTestUser("user1", "jane@example.com"))
	assert.Error(t, err)
}

func TestDuoWebVerifier_Validate_RoundTrip(t *testing.T) {
	appKey := "application-key-application-key-application"
	verifier := NewDuoWebVerifier(appKey, "https://vault.example.com/duo-callback")
	provider := duoProvider()
	user := NewTestUser("user1", "jane@example.com")

	// A successful iframe exchange returns AUTH signed by Duo with the
	// provider secret, paired with our APP segment.
	auth := signDuoValue(provider.MetaDataString("SKey"), user.Email, provider.MetaDataString("IKey"), duoPrefixAuth, time.Minute)
	app := signDuoValue(appKey, user.Email, provider.MetaDataString("IKey"), duoPrefixAPP, time.Minute)

	ok, err := verifier.Validate(context.Background(), auth+":"+app, provider, user)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDuoWebVerifier_Validate_WrongUser(t *testing.T) {
	appKey := "application-key-application-key-application"
	verifier := NewDuoWebVerifier(appKey, "https://vault.example.com/duo-callback")
	provider := duoProvider()

	auth := signDuoValue(provider.MetaDataString("SKey"), "mallory@example.com", provider.MetaDataString("IKey"), duoPrefixAuth, time.Minute)
	app := signDuoValue(appKey, "mallory@example.com", provider.MetaDataString("IKey"), duoPrefixAPP, time.Minute)

	ok, err := verifier.Validate(context.Background(), auth+":"+app, provider, NewTestUser("user1", "jane@example.com"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuoWebVerifier_Validate_TamperedSignature(t *testing.T) {
	appKey := "application-key-application-key-application"
	verifier := NewDuoWebVerifier(appKey, "https://vault.example.com/duo-callback")
	provider := duoProvider()
	user := NewTestUser("user1", "jane@example.com")

	// AUTH signed with the wrong secret must not verify
	auth := signDuoValue("not-the-provider-secret", user.Email, provider.MetaDataString("IKey"), duoPrefixAuth, time.Minute)
	app := signDuoValue(appKey, user.Email, provider.MetaDataString("IKey"), duoPrefixAPP, time.Minute)

	ok, err := verifier.Validate(context.Background(), auth+":"+app, provider, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuoWebVerifier_Validate_Expired(t *testing.T) {
	appKey := "application-key-application-key-application"
	verifier := NewDuoWebVerifier(appKey, "https://vault.example.com/duo-callback")
	provider := duoProvider()
	user := NewTestUser("user1", "jane@example.com")

	auth := signDuoValue(provider.MetaDataString("SKey"), user.Email, provider.MetaDataString("IKey"), duoPrefixAuth, -time.Minute)
	app := signDuoValue(appKey, user.Email, provider.MetaDataString("IKey"), duoPrefixAPP, time.Minute)

	ok, err := verifier.Validate(context.Background(), auth+":"+app, provider, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuoWebVerifier_GenerateAuthURL(t *testing.T) {
	verifier := NewDuoWebVerifier("application-key", "https://vault.example.com/duo-callback")
	user := NewTestUser("user1", "jane@example.com")

	authURL, err := verifier.GenerateAuthURL(context.Background(), duoProvider(), user)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, "https://api-xxxx.duosecurity.com/oauth/v1/authorize?"))
	assert.Contains(t, authURL, "request=")
}
