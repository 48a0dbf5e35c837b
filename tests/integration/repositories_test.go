package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		panic("failed to set up test database: " + err.Error())
	}
	testDB = db

	code := m.Run()

	_ = testDB.Teardown(ctx)
	if code != 0 {
		panic("integration tests failed")
	}
}

func resetDB(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.TruncateAll(context.Background()))
}

func seedUser(t *testing.T, email string) *models.User {
	t.Helper()
	userRepo := repositories.NewUserRepository(testDB.DB)
	user, err := userRepo.Create(context.Background(), &models.User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           "Test User",
		MasterPassword: "$2a$10$abcdefghijklmnopqrstuv",
		SecurityStamp:  uuid.NewString(),
		Key:            "2.account-key",
		PrivateKey:     "2.private-key",
		Kdf:            models.KdfPBKDF2SHA256,
		KdfIterations:  600000,
	})
	require.NoError(t, err)
	return user
}

func seedOrganization(t *testing.T, enabled bool, providers string) string {
	t.Helper()
	orgID := uuid.NewString()
	_, err := testDB.Pool.Exec(context.Background(), `
		INSERT INTO organizations (id, name, enabled, use_sso, two_factor_providers)
		VALUES ($1, 'Acme', $2, true, $3)
	`, orgID, enabled, providers)
	require.NoError(t, err)
	return orgID
}

func seedMembership(t *testing.T, orgID, userID string, status models.OrganizationUserStatus) {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), `
		INSERT INTO organization_users (id, organization_id, user_id, status)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), orgID, userID, status)
	require.NoError(t, err)
}

func TestUserRepository_RoundTrip(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	userRepo := repositories.NewUserRepository(testDB.DB)

	created := seedUser(t, "jane@example.com")

	byID, err := userRepo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", byID.Email)
	assert.Equal(t, created.SecurityStamp, byID.SecurityStamp)

	byEmail, err := userRepo.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
}

func TestUserRepository_TwoFactorProvidersSurviveReplace(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	userRepo := repositories.NewUserRepository(testDB.DB)

	user := seedUser(t, "jane@example.com")
	user.TwoFactorProviders = map[models.TwoFactorProviderType]*models.TwoFactorProvider{
		models.TwoFactorProviderAuthenticator: {
			Enabled:  true,
			MetaData: map[string]any{"Key": "JBSWY3DPEHPK3PXP"},
		},
	}
	require.NoError(t, userRepo.Replace(ctx, user))

	reloaded, err := userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	provider := reloaded.GetTwoFactorProvider(models.TwoFactorProviderAuthenticator)
	require.NotNil(t, provider)
	assert.True(t, provider.Enabled)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", provider.MetaDataString("Key"))
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	resetDB(t)
	userRepo := repositories.NewUserRepository(testDB.DB)

	seedUser(t, "jane@example.com")
	_, err := userRepo.Create(context.Background(), &models.User{
		ID:            uuid.NewString(),
		Email:         "jane@example.com",
		SecurityStamp: uuid.NewString(),
	})
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestDeviceRepository_UniquePerUserIdentifier(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	deviceRepo := repositories.NewDeviceRepository(testDB.DB)
	user := seedUser(t, "jane@example.com")

	device := &models.Device{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Identifier: "device-1",
		Name:       "firefox",
		Type:       models.DeviceTypeFirefoxBrowser,
	}
	require.NoError(t, deviceRepo.Create(ctx, device))

	dup := &models.Device{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Identifier: "device-1",
		Name:       "firefox again",
		Type:       models.DeviceTypeFirefoxBrowser,
	}
	err := deviceRepo.Create(ctx, dup)
	assert.True(t, errors.Is(err, models.ErrConflict))

	found, err := deviceRepo.GetByIdentifier(ctx, user.ID, "device-1")
	require.NoError(t, err)
	assert.Equal(t, "firefox", found.Name)

	all, err := deviceRepo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeviceRepository_CreateBumpsUserRevision(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	deviceRepo := repositories.NewDeviceRepository(testDB.DB)
	user := seedUser(t, "jane@example.com")

	userUpdatedAt := func() time.Time {
		var at time.Time
		require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT updated_at FROM users WHERE id = $1`, user.ID).Scan(&at))
		return at
	}
	before := userUpdatedAt()

	device := &models.Device{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Identifier: "device-1",
		Name:       "firefox",
		Type:       models.DeviceTypeFirefoxBrowser,
	}
	require.NoError(t, deviceRepo.Create(ctx, device))

	afterCreate := userUpdatedAt()
	assert.True(t, afterCreate.After(before), "device registration should bump the owner's revision")

	// A conflicting insert rolls back the whole transaction, revision
	// bump included.
	dup := &models.Device{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Identifier: "device-1",
		Name:       "firefox again",
		Type:       models.DeviceTypeFirefoxBrowser,
	}
	err := deviceRepo.Create(ctx, dup)
	require.True(t, errors.Is(err, models.ErrConflict))
	assert.True(t, userUpdatedAt().Equal(afterCreate), "failed registration should not touch the owner's revision")
}

func TestEventRepository_CreateAndPrune(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	eventRepo := repositories.NewEventRepository(testDB.DB)
	user := seedUser(t, "jane@example.com")

	old := &models.Event{
		UserID:    user.ID,
		Type:      models.EventUserFailedLogIn,
		IPAddress: "10.0.0.1",
		Date:      time.Now().Add(-100 * 24 * time.Hour),
	}
	recent := &models.Event{
		UserID:    user.ID,
		Type:      models.EventUserLoggedIn,
		IPAddress: "10.0.0.1",
	}
	require.NoError(t, eventRepo.Create(ctx, old))
	require.NoError(t, eventRepo.Create(ctx, recent))

	deleted, err := eventRepo.DeleteOlderThan(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := eventRepo.GetManyByUserID(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, models.EventUserLoggedIn, remaining[0].Type)
}

func TestOrganizationRepository_Abilities(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	orgRepo := repositories.NewOrganizationRepository(testDB.DB)

	withDuo := seedOrganization(t, true, `{"6": {"enabled": true, "metaData": {"Host": "api-xxxx.duosecurity.com"}}}`)
	without := seedOrganization(t, true, `{}`)
	disabled := seedOrganization(t, false, `{"6": {"enabled": true}}`)

	abilities, err := orgRepo.GetAbilities(ctx)
	require.NoError(t, err)
	require.Len(t, abilities, 3)

	assert.True(t, abilities[withDuo].Enabled)
	assert.True(t, abilities[withDuo].Using2FA)
	assert.False(t, abilities[without].Using2FA)
	assert.False(t, abilities[disabled].Enabled)
}

func TestOrganizationRepository_MembershipsFilterByStatus(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	orgRepo := repositories.NewOrganizationRepository(testDB.DB)
	user := seedUser(t, "jane@example.com")

	accepted := seedOrganization(t, true, `{}`)
	invited := seedOrganization(t, true, `{}`)
	seedMembership(t, accepted, user.ID, models.OrganizationUserAccepted)
	seedMembership(t, invited, user.ID, models.OrganizationUserInvited)

	memberships, err := orgRepo.GetMemberships(ctx, user.ID, models.OrganizationUserAccepted)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, accepted, memberships[0].OrganizationID)
}

func TestPolicyRepository_ApplicableToUser(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	policyRepo := repositories.NewPolicyRepository(testDB.DB)
	user := seedUser(t, "jane@example.com")

	orgID := seedOrganization(t, true, `{}`)
	seedMembership(t, orgID, user.ID, models.OrganizationUserConfirmed)

	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO policies (id, organization_id, type, enabled, data)
		VALUES ($1, $2, $3, true, '{"minLength": 12}')
	`, uuid.NewString(), orgID, models.PolicyTypeMasterPassword)
	require.NoError(t, err)

	// A disabled policy in the same org must not surface
	_, err = testDB.Pool.Exec(ctx, `
		INSERT INTO policies (id, organization_id, type, enabled, data)
		VALUES ($1, $2, $3, false, NULL)
	`, uuid.NewString(), orgID, models.PolicyTypeRequireSso)
	require.NoError(t, err)

	policies, err := policyRepo.GetManyApplicableToUser(ctx, user.ID, models.PolicyTypeMasterPassword, models.OrganizationUserAccepted)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, float64(12), policies[0].Data["minLength"])

	ssoPolicies, err := policyRepo.GetManyApplicableToUser(ctx, user.ID, models.PolicyTypeRequireSso, models.OrganizationUserAccepted)
	require.NoError(t, err)
	assert.Empty(t, ssoPolicies)
}

func TestSsoConfigRepository_GetByOrganizationID(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	ssoRepo := repositories.NewSsoConfigRepository(testDB.DB)

	orgID := seedOrganization(t, true, `{}`)
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO sso_configs (id, organization_id, enabled, member_decryption_type, key_connector_url)
		VALUES ($1, $2, true, $3, 'https://keyconnector.example.com')
	`, uuid.NewString(), orgID, models.MemberDecryptionKeyConnector)
	require.NoError(t, err)

	cfg, err := ssoRepo.GetByOrganizationID(ctx, orgID)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, models.MemberDecryptionKeyConnector, cfg.MemberDecryptionType)
	assert.Equal(t, "https://keyconnector.example.com", cfg.KeyConnectorURL)

	_, err = ssoRepo.GetByOrganizationID(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
