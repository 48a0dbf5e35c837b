package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/repositories"
)

// PolicyService evaluates organization policies against a user.
type PolicyService struct {
	policyRepo repositories.PolicyRepository
	logger     *slog.Logger
}

func NewPolicyService(policyRepo repositories.PolicyRepository, logger *slog.Logger) *PolicyService {
	return &PolicyService{policyRepo: policyRepo, logger: logger}
}

// IsValidAuthType reports whether the grant type may complete validation for
// this user. Authorization-code grants arrive already SSO-authenticated and
// client-credentials grants are exempt from SSO, so both always pass. A
// password grant is blocked when any confirmed membership carries an enabled
// require-SSO policy; a user in zero organizations is never blocked.
func (s *PolicyService) IsValidAuthType(ctx context.Context, user *models.User, grantType string) (bool, error) {
	if grantType == models.GrantTypeAuthorizationCode || grantType == models.GrantTypeClientCredentials {
		return true, nil
	}

	policies, err := s.policyRepo.GetManyApplicableToUser(ctx, user.ID,
		models.PolicyTypeRequireSso, models.OrganizationUserConfirmed)
	if err != nil {
		return false, fmt.Errorf("failed to check require-sso policies: %w", err)
	}

	return len(policies) == 0, nil
}

// GetMasterPasswordPolicy merges the enabled master-password policies across
// the user's confirmed organizations into the strictest combined
// requirement. Returns nil when no policy applies.
func (s *PolicyService) GetMasterPasswordPolicy(ctx context.Context, user *models.User) (*models.MasterPasswordPolicy, error) {
	policies, err := s.policyRepo.GetManyApplicableToUser(ctx, user.ID,
		models.PolicyTypeMasterPassword, models.OrganizationUserConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to load master-password policies: %w", err)
	}
	if len(policies) == 0 {
		return nil, nil
	}

	merged := &models.MasterPasswordPolicy{}
	for _, p := range policies {
		if p.Data == nil {
			continue
		}
		if v, ok := p.Data["minComplexity"].(float64); ok && int(v) > merged.MinComplexity {
			merged.MinComplexity = int(v)
		}
		if v, ok := p.Data["minLength"].(float64); ok && int(v) > merged.MinLength {
			merged.MinLength = int(v)
		}
		merged.RequireUpper = merged.RequireUpper || boolData(p.Data, "requireUpper")
		merged.RequireLower = merged.RequireLower || boolData(p.Data, "requireLower")
		merged.RequireNumbers = merged.RequireNumbers || boolData(p.Data, "requireNumbers")
		merged.RequireSpecial = merged.RequireSpecial || boolData(p.Data, "requireSpecial")
		merged.EnforceOnLogin = merged.EnforceOnLogin || boolData(p.Data, "enforceOnLogin")
	}

	return merged, nil
}

// ResetPasswordAutoEnrollDisabled reports whether the organization has a
// reset-password policy with auto-enrollment turned off, which means
// trusted-device users need explicit admin approval.
func (s *PolicyService) ResetPasswordAutoEnrollDisabled(ctx context.Context, organizationID string) bool {
	policy, err := s.policyRepo.GetByOrganizationIDType(ctx, organizationID, models.PolicyTypeResetPassword)
	if err != nil {
		// Absent policy means no admin-approval path
		return false
	}
	return policy.Enabled && !policy.AutoEnrollEnabled()
}

func boolData(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}
