package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mportier/vaultgate/internal/models"
)

func TestPolicyService_IsValidAuthType_PasswordBlockedByRequireSso(t *testing.T) {
	policyRepo := &MockPolicyRepository{
		GetManyApplicableToUserFunc: func(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error) {
			assert.Equal(t, models.PolicyTypeRequireSso, policyType)
			assert.Equal(t, models.OrganizationUserConfirmed, minStatus)
			return []*models.Policy{{OrganizationID: "org1", Enabled: true}}, nil
		},
	}
	svc := NewPolicyService(policyRepo, slog.Default())
	user := NewTestUser("user1", "user@example.com")

	ok, err := svc.IsValidAuthType(context.Background(), user, models.GrantTypePassword)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyService_IsValidAuthType_NoOrganizations(t *testing.T) {
	svc := NewPolicyService(&MockPolicyRepository{}, slog.Default())
	user := NewTestUser("user1", "user@example.com")

	ok, err := svc.IsValidAuthType(context.Background(), user, models.GrantTypePassword)

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPolicyService_IsValidAuthType_NonPasswordGrantsPass(t *testing.T) {
	policyRepo := &MockPolicyRepository{
		GetManyApplicableToUserFunc: func(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error) {
			t.Fatal("sso policy must not be consulted for exempt grants")
			return nil, nil
		},
	}
	svc := NewPolicyService(policyRepo, slog.Default())
	user := NewTestUser("user1", "user@example.com")

	for _, grantType := range []string{models.GrantTypeAuthorizationCode, models.GrantTypeClientCredentials} {
		ok, err := svc.IsValidAuthType(context.Background(), user, grantType)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestPolicyService_GetMasterPasswordPolicy_MergesStrictest(t *testing.T) {
	policyRepo := &MockPolicyRepository{
		GetManyApplicableToUserFunc: func(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error) {
			return []*models.Policy{
				{OrganizationID: "org1", Enabled: true, Data: map[string]any{
					"minLength": float64(12), "requireUpper": true,
				}},
				{OrganizationID: "org2", Enabled: true, Data: map[string]any{
					"minLength": float64(8), "minComplexity": float64(3), "requireNumbers": true,
				}},
			}, nil
		},
	}
	svc := NewPolicyService(policyRepo, slog.Default())
	user := NewTestUser("user1", "user@example.com")

	policy, err := svc.GetMasterPasswordPolicy(context.Background(), user)

	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, 12, policy.MinLength)
	assert.Equal(t, 3, policy.MinComplexity)
	assert.True(t, policy.RequireUpper)
	assert.True(t, policy.RequireNumbers)
	assert.False(t, policy.RequireSpecial)
}

func TestPolicyService_GetMasterPasswordPolicy_NoneApplicable(t *testing.T) {
	svc := NewPolicyService(&MockPolicyRepository{}, slog.Default())
	user := NewTestUser("user1", "user@example.com")

	policy, err := svc.GetMasterPasswordPolicy(context.Background(), user)

	require.NoError(t, err)
	assert.Nil(t, policy)
}

func TestPolicyService_ResetPasswordAutoEnrollDisabled(t *testing.T) {
	cases := []struct {
		name   string
		policy *models.Policy
		want   bool
	}{
		{"no policy", nil, false},
		{"enabled without auto-enroll", &models.Policy{Enabled: true, Data: map[string]any{}}, true},
		{"enabled with auto-enroll", &models.Policy{Enabled: true, Data: map[string]any{"autoEnrollEnabled": true}}, false},
		{"disabled", &models.Policy{Enabled: false}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policyRepo := &MockPolicyRepository{
				GetByOrganizationIDTypeFunc: func(ctx context.Context, organizationID string, policyType models.PolicyType) (*models.Policy, error) {
					if tc.policy == nil {
						return nil, models.ErrNotFound
					}
					return tc.policy, nil
				},
			}
			svc := NewPolicyService(policyRepo, slog.Default())
			assert.Equal(t, tc.want, svc.ResetPasswordAutoEnrollDisabled(context.Background(), "org1"))
		})
	}
}
