package services

import (
	"context"
	"log/slog"

	"github.com/mportier/vaultgate/internal/models"
)

// DecryptionOptionsBuilder produces the set of vault-decryption methods
// available to a newly authenticated client. The result is a function of the
// user, the device, and the resolved SSO configuration only; nothing is
// mutated.
type DecryptionOptionsBuilder struct {
	policies *PolicyService
	logger   *slog.Logger
}

func NewDecryptionOptionsBuilder(policies *PolicyService, logger *slog.Logger) *DecryptionOptionsBuilder {
	return &DecryptionOptionsBuilder{policies: policies, logger: logger}
}

// Build assembles the decryption options. The options are not mutually
// exclusive: a trusted-device organization user who still has a master
// password receives both.
func (b *DecryptionOptionsBuilder) Build(ctx context.Context, user *models.User, device *models.Device, ssoConfig *models.SsoConfiguration) *models.UserDecryptionOptions {
	options := &models.UserDecryptionOptions{
		HasMasterPassword: user.HasMasterPassword(),
	}

	if ssoConfig == nil {
		return options
	}

	switch ssoConfig.MemberDecryptionType {
	case models.MemberDecryptionTrustedDeviceEncryption:
		options.TrustedDeviceOption = &models.TrustedDeviceOption{
			HasAdminApproval: b.policies.ResetPasswordAutoEnrollDisabled(ctx, ssoConfig.OrganizationID),
		}
	case models.MemberDecryptionKeyConnector:
		options.KeyConnectorOption = &models.KeyConnectorOption{
			KeyConnectorURL: ssoConfig.KeyConnectorURL,
		}
	}

	return options
}
