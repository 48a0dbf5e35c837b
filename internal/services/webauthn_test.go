package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
)

func newWebAuthnFixture(t *testing.T) (*WebAuthnService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewWebAuthnService(
		"vault.example.com", "Vaultgate",
		[]string{"https://vault.example.com"},
		client, 5*time.Minute, slog.Default(),
	)
	require.NoError(t, err)
	return svc, mr
}

// webauthnProvider builds a provider carrying one registered credential in
// the JSONB shape the enrollment flow stores.
func webauthnProvider(t *testing.T) *models.TwoFactorProvider {
	t.Helper()

	credential := webauthn.Credential{
		ID:        []byte("credential-1"),
		PublicKey: []byte{0x01, 0x02, 0x03},
	}
	blob, err := json.Marshal(credential)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(blob, &stored))

	return &models.TwoFactorProvider{
		Enabled:  true,
		MetaData: map[string]any{"Key1": stored},
	}
}

func TestWebAuthnService_GenerateChallenge(t *testing.T) {
	svc, mr := newWebAuthnFixture(t)
	user := NewTestUser("user1", "user@example.com")
	provider := webauthnProvider(t)

	params, err := svc.GenerateChallenge(context.Background(), user, provider)
	require.NoError(t, err)

	assert.NotEmpty(t, params["challenge"])
	assert.Equal(t, "vault.example.com", params["rpId"])
	allowed, ok := params["allowCredentials"].([]any)
	require.True(t, ok)
	assert.Len(t, allowed, 1)

	assert.True(t, mr.Exists("webauthn_login:user1"), "session should be pending in redis")
}

func TestWebAuthnService_GenerateChallenge_NoRegisteredCredentials(t *testing.T) {
	svc, _ := newWebAuthnFixture(t)
	user := NewTestUser("user1", "user@example.com")
	provider := &models.TwoFactorProvider{Enabled: true, MetaData: map[string]any{}}

	_, err := svc.GenerateChallenge(context.Background(), user, provider)
	assert.Error(t, err)
}

func TestWebAuthnService_Validate_NoPendingSession(t *testing.T) {
	svc, _ := newWebAuthnFixture(t)
	user := NewTestUser("user1", "user@example.com")

	verified, err := svc.Validate(context.Background(), "{}", user, webauthnProvider(t))
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestWebAuthnService_Validate_MalformedAssertionConsumesSession(t *testing.T) {
	svc, mr := newWebAuthnFixture(t)
	user := NewTestUser("user1", "user@example.com")
	provider := webauthnProvider(t)

	_, err := svc.GenerateChallenge(context.Background(), user, provider)
	require.NoError(t, err)

	verified, err := svc.Validate(context.Background(), "not-an-assertion", user, provider)
	require.NoError(t, err)
	assert.False(t, verified)

	// The session is single-use even on rejection.
	assert.False(t, mr.Exists("webauthn_login:user1"))
}

func TestTwoFactorEngine_WebAuthnOnlyUser_GetsChallenge(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.Default()

	svc, err := NewWebAuthnService(
		"vault.example.com", "Vaultgate",
		[]string{"https://vault.example.com"},
		client, 5*time.Minute, logger,
	)
	require.NoError(t, err)

	orgRepo := &MockOrganizationRepository{}
	engine := NewTwoFactorEngine(
		orgRepo,
		NewOrganizationAbilitiesCache(client, orgRepo, time.Minute, logger),
		auth.NewTOTPManager("VaultGate"),
		NewEmailCodeService(client, &MockMailService{}, 5*time.Minute, logger),
		auth.NewRememberTokenManager(testSecret, 30*24*time.Hour),
		auth.NewSessionTokenManager(testSecret, 10*time.Minute),
		&MockDuoVerifier{}, &MockYubiKeyVerifier{}, svc,
		&MockFeatureService{Flags: map[string]bool{}}, logger,
	)

	user := NewTestUser("user1", "user@example.com")
	user.TwoFactorProviders = map[models.TwoFactorProviderType]*models.TwoFactorProvider{
		models.TwoFactorProviderWebAuthn: webauthnProvider(t),
	}

	required, org, err := engine.RequiresTwoFactor(context.Background(), user, models.GrantTypePassword)
	require.NoError(t, err)
	require.True(t, required)
	require.Nil(t, org)

	challenge, err := engine.BuildChallenge(context.Background(), user, nil)
	require.NoError(t, err)
	params, ok := challenge.Providers[models.TwoFactorProviderWebAuthn]
	require.True(t, ok, "webauthn-only user should receive a webauthn challenge")
	assert.NotEmpty(t, params["challenge"])
}
