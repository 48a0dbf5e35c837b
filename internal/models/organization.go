package models

import "time"

// Organization is the subset of organization state the identity core reads.
type Organization struct {
	ID      string
	Name    string
	Enabled bool
	UseSso  bool

	// Organization-level two-factor configuration (organization Duo)
	TwoFactorProviders map[TwoFactorProviderType]*TwoFactorProvider

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetTwoFactorProvider returns the organization's configuration for a
// provider type, or nil.
func (o *Organization) GetTwoFactorProvider(t TwoFactorProviderType) *TwoFactorProvider {
	if o == nil || o.TwoFactorProviders == nil {
		return nil
	}
	return o.TwoFactorProviders[t]
}

// TwoFactorProviderIsEnabled reports whether the organization has the given
// provider configured and enabled.
func (o *Organization) TwoFactorProviderIsEnabled(t TwoFactorProviderType) bool {
	p := o.GetTwoFactorProvider(t)
	return p != nil && p.Enabled
}

// TwoFactorIsEnabled reports whether any organization-level provider is
// enabled.
func (o *Organization) TwoFactorIsEnabled() bool {
	if o == nil {
		return false
	}
	for _, p := range o.TwoFactorProviders {
		if p != nil && p.Enabled {
			return true
		}
	}
	return false
}

// OrganizationAbility is the cached per-organization feature snapshot used
// for cheap membership-wide checks without loading full organization rows.
type OrganizationAbility struct {
	ID       string `json:"id"`
	Enabled  bool   `json:"enabled"`
	Using2FA bool   `json:"using2fa"`
}

// OrganizationUserStatus tracks the lifecycle of a membership.
type OrganizationUserStatus int

const (
	OrganizationUserInvited   OrganizationUserStatus = 0
	OrganizationUserAccepted  OrganizationUserStatus = 1
	OrganizationUserConfirmed OrganizationUserStatus = 2
)

// OrganizationMembership links a user to an organization.
type OrganizationMembership struct {
	ID             string
	OrganizationID string
	UserID         string
	Status         OrganizationUserStatus
}

// PolicyType identifies an organization policy.
type PolicyType int

const (
	PolicyTypeTwoFactorAuthentication PolicyType = 0
	PolicyTypeMasterPassword          PolicyType = 1
	PolicyTypeRequireSso              PolicyType = 4
	PolicyTypeResetPassword           PolicyType = 8
)

// Policy is an organization-scoped rule. Data carries policy-specific
// settings as loose JSON.
type Policy struct {
	ID             string
	OrganizationID string
	Type           PolicyType
	Enabled        bool
	Data           map[string]any
}

// AutoEnrollEnabled reads the reset-password policy's auto-enrollment flag.
func (p *Policy) AutoEnrollEnabled() bool {
	if p == nil || p.Data == nil {
		return false
	}
	v, _ := p.Data["autoEnrollEnabled"].(bool)
	return v
}

// MasterPasswordPolicy is the merged master-password requirements across a
// user's organizations, echoed to clients on login.
type MasterPasswordPolicy struct {
	MinComplexity    int  `json:"minComplexity"`
	MinLength        int  `json:"minLength"`
	RequireUpper     bool `json:"requireUpper"`
	RequireLower     bool `json:"requireLower"`
	RequireNumbers   bool `json:"requireNumbers"`
	RequireSpecial   bool `json:"requireSpecial"`
	EnforceOnLogin   bool `json:"enforceOnLogin"`
}
