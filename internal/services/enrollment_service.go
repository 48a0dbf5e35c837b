package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/repositories"
	pkglogger "github.com/mportier/vaultgate/pkg/logger"
)

// AuthenticatorSetup carries a freshly-generated TOTP secret and its QR
// representation, handed to the client before activation.
type AuthenticatorSetup struct {
	Secret string `json:"secret"`
	QRCode string `json:"qrCode"`
}

// EnrollmentService manages enabling and disabling two-factor providers on a
// user account. Enrollment is a two-step flow for authenticator: generate a
// secret, then activate it by proving possession with a valid code. A
// provider change always rolls the user's security stamp so outstanding
// remember tokens and sessions are invalidated.
type EnrollmentService struct {
	userRepo    repositories.UserRepository
	totp        *auth.TOTPManager
	emailCodes  *EmailCodeService
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewEnrollmentService(
	userRepo repositories.UserRepository,
	totp *auth.TOTPManager,
	emailCodes *EmailCodeService,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		userRepo:    userRepo,
		totp:        totp,
		emailCodes:  emailCodes,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// BeginAuthenticator generates a new TOTP secret for the user. Nothing is
// persisted until ActivateAuthenticator succeeds.
func (s *EnrollmentService) BeginAuthenticator(user *models.User) (*AuthenticatorSetup, error) {
	secret, qrCode, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authenticator secret: %w", err)
	}
	return &AuthenticatorSetup{Secret: secret, QRCode: qrCode}, nil
}

// ActivateAuthenticator verifies the submitted code against the pending
// secret and, on success, persists the authenticator provider as enabled.
func (s *EnrollmentService) ActivateAuthenticator(ctx context.Context, user *models.User, secret, code string) error {
	if !s.totp.Validate(secret, code) {
		return fmt.Errorf("%w: invalid authenticator code", models.ErrBadRequest)
	}

	s.setProvider(user, models.TwoFactorProviderAuthenticator, &models.TwoFactorProvider{
		Enabled:  true,
		MetaData: map[string]any{"Key": secret},
	})

	if err := s.saveUser(ctx, user); err != nil {
		return err
	}

	s.auditLogger.LogTwoFactorChange("two_factor_enabled", user.ID, models.TwoFactorProviderAuthenticator.String())
	return nil
}

// EnableEmail turns on email two-factor after the user proves they can
// receive codes at their address.
func (s *EnrollmentService) EnableEmail(ctx context.Context, user *models.User, code string) error {
	if !s.emailCodes.Verify(ctx, user, code) {
		return fmt.Errorf("%w: invalid email code", models.ErrBadRequest)
	}

	s.setProvider(user, models.TwoFactorProviderEmail, &models.TwoFactorProvider{
		Enabled:  true,
		MetaData: map[string]any{"Email": user.Email},
	})

	if err := s.saveUser(ctx, user); err != nil {
		return err
	}

	s.auditLogger.LogTwoFactorChange("two_factor_enabled", user.ID, models.TwoFactorProviderEmail.String())
	return nil
}

// SendEmailSetupCode sends a verification code so the user can complete
// email two-factor enrollment.
func (s *EnrollmentService) SendEmailSetupCode(ctx context.Context, user *models.User) error {
	return s.emailCodes.SendCode(ctx, user)
}

// Disable removes a provider from the user's account.
func (s *EnrollmentService) Disable(ctx context.Context, user *models.User, providerType models.TwoFactorProviderType) error {
	if user.GetTwoFactorProvider(providerType) == nil {
		return fmt.Errorf("%w: provider not enabled", models.ErrNotFound)
	}

	delete(user.TwoFactorProviders, providerType)

	if err := s.saveUser(ctx, user); err != nil {
		return err
	}

	s.auditLogger.LogTwoFactorChange("two_factor_disabled", user.ID, providerType.String())
	return nil
}

func (s *EnrollmentService) setProvider(user *models.User, t models.TwoFactorProviderType, p *models.TwoFactorProvider) {
	if user.TwoFactorProviders == nil {
		user.TwoFactorProviders = make(map[models.TwoFactorProviderType]*models.TwoFactorProvider)
	}
	user.TwoFactorProviders[t] = p
}

func (s *EnrollmentService) saveUser(ctx context.Context, user *models.User) error {
	user.RotateSecurityStamp()
	if err := s.userRepo.Replace(ctx, user); err != nil {
		s.logger.Error("failed to persist two-factor change",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}
