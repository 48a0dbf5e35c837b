package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/repositories"
	pkglogger "github.com/mportier/vaultgate/pkg/logger"
)

const (
	msgInvalidCredentials = "Username or password is incorrect. Try again."
	msgInvalidTwoFactor   = "Two-step token is invalid. Try again."
	msgNoProviders        = "No two-step providers enabled."
	msgNoDeviceInfo       = "No device information provided."
	msgLegacyUser         = "Legacy user detected. Please login on web vault to migrate your account"

	// Client ID prefix for API-key grants: "user.<uuid>".
	apiKeyClientPrefix = "user."

	// Legacy accounts may still sign in here to complete migration.
	webClientID = "web"
)

// Burned whenever the username does not resolve, so the password-grant
// path costs one bcrypt comparison whether or not the account exists.
var dummyPasswordHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// ValidatorConfig tunes the failed-auth tracker.
type ValidatorConfig struct {
	// FailedLoginCeiling is the failure count at which the account-owner
	// warning email fires. Zero disables the email entirely.
	FailedLoginCeiling int
}

// LoginValidator runs a token request through the full authentication state
// machine: credential check, SSO policy gate, two-factor, device trust, and
// response shaping. Every request resolves to exactly one AuthOutcome.
type LoginValidator struct {
	userRepo      repositories.UserRepository
	ssoConfigRepo repositories.SsoConfigRepository
	eventRepo     repositories.EventRepository

	policies          *PolicyService
	twoFactor         *TwoFactorEngine
	devices           *DeviceService
	decryptionOptions *DecryptionOptionsBuilder
	features          FeatureService
	mail              MailService

	timing      *auth.TimingDelay
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	config      ValidatorConfig
}

func NewLoginValidator(
	userRepo repositories.UserRepository,
	ssoConfigRepo repositories.SsoConfigRepository,
	eventRepo repositories.EventRepository,
	policies *PolicyService,
	twoFactor *TwoFactorEngine,
	devices *DeviceService,
	decryptionOptions *DecryptionOptionsBuilder,
	features FeatureService,
	mail MailService,
	timing *auth.TimingDelay,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	config ValidatorConfig,
) *LoginValidator {
	return &LoginValidator{
		userRepo:          userRepo,
		ssoConfigRepo:     ssoConfigRepo,
		eventRepo:         eventRepo,
		policies:          policies,
		twoFactor:         twoFactor,
		devices:           devices,
		decryptionOptions: decryptionOptions,
		features:          features,
		mail:              mail,
		timing:            timing,
		auditLogger:       auditLogger,
		logger:            logger,
		config:            config,
	}
}

// Validate resolves a token request to its single terminal outcome.
func (v *LoginValidator) Validate(ctx context.Context, request *models.AuthRequest) *models.AuthOutcome {
	user, valid := v.verifyCredentials(ctx, request)

	// Organization policy may demand SSO before the credential flow is even
	// attempted, so a policy-blocked account never leaks whether the
	// password was right.
	if user != nil {
		authTypeOK, err := v.policies.IsValidAuthType(ctx, user, request.GrantType)
		if err != nil {
			v.logger.Error("failed to evaluate sso policy",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			return v.errorOutcome(ctx, request, user, msgInvalidCredentials, false)
		}
		if !authTypeOK {
			v.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "sso_required",
				UserID:        user.ID,
				IPAddress:     request.RemoteIP,
				GrantType:     request.GrantType,
				Success:       false,
				FailureReason: "sso required by organization policy",
			})
			return models.NewSsoRequiredOutcome()
		}
	}

	knownDevice := false
	if user != nil {
		knownDevice = v.devices.KnownDevice(ctx, user, request.Device)
	}

	if !valid {
		v.updateFailedAuth(ctx, user, request, false, !knownDevice)
		return v.errorOutcome(ctx, request, user, msgInvalidCredentials, false)
	}

	twoFactorRequest := request.HasTwoFactorSubmission()
	sendRememberToken := false

	isTwoFactorRequired, twoFactorOrg, err := v.twoFactor.RequiresTwoFactor(ctx, user, request.GrantType)
	if err != nil {
		v.logger.Error("failed to determine two-factor requirement",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return v.errorOutcome(ctx, request, user, msgInvalidCredentials, false)
	}

	if isTwoFactorRequired {
		providerType, parseErr := models.ParseTwoFactorProviderType(request.TwoFactorProvider)
		if !twoFactorRequest || parseErr != nil {
			return v.twoFactorOutcome(ctx, request, user, twoFactorOrg)
		}

		verified, err := v.twoFactor.Verify(ctx, user, twoFactorOrg, providerType, request.TwoFactorToken, request.Device.Identifier)
		if err != nil {
			v.logger.Error("two-factor verification errored",
				slog.String("user_id", user.ID),
				slog.String("provider_type", providerType.String()),
				slog.Any("error", err))
		}
		if err != nil || !verified {
			if providerType == models.TwoFactorProviderRemember {
				// Expired remember tokens re-issue the challenge rather
				// than counting as a hard two-factor failure.
				return v.twoFactorOutcome(ctx, request, user, twoFactorOrg)
			}
			v.updateFailedAuth(ctx, user, request, true, !knownDevice)
			return v.errorOutcome(ctx, request, user, msgInvalidTwoFactor, true)
		}

		// A successful Remember replay also rolls the token forward so the
		// device never ages out mid-streak.
		sendRememberToken = twoFactorRequest && request.TwoFactorRemember
	}

	if v.features.IsEnabled(FeatureBlockLegacyUsers) && user.IsLegacy() && request.ClientID != webClientID {
		return v.errorOutcome(ctx, request, user, msgLegacyUser, false)
	}

	device, err := v.devices.GetOrCreateDevice(ctx, user, request.Device, request.RemoteIP)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			return v.errorOutcome(ctx, request, user, msgNoDeviceInfo, false)
		}
		v.logger.Error("failed to resolve device",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return v.errorOutcome(ctx, request, user, msgInvalidCredentials, false)
	}

	return v.buildSuccess(ctx, request, user, device, sendRememberToken)
}

// verifyCredentials resolves the user for the request's grant type and
// checks the presented credential. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (v *LoginValidator) verifyCredentials(ctx context.Context, request *models.AuthRequest) (*models.User, bool) {
	switch request.GrantType {
	case models.GrantTypePassword:
		user, err := v.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(request.Username)))
		if err != nil {
			// Equalize cost with the found-user path.
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(request.Password))
			return nil, false
		}
		if !user.HasMasterPassword() {
			return user, false
		}
		err = bcrypt.CompareHashAndPassword([]byte(user.MasterPassword), []byte(request.Password))
		return user, err == nil

	case models.GrantTypeAuthorizationCode:
		// Subject was established by the SSO grant exchange upstream.
		if request.Subject == "" {
			return nil, false
		}
		user, err := v.userRepo.GetByID(ctx, request.Subject)
		if err != nil {
			return nil, false
		}
		return user, true

	case models.GrantTypeClientCredentials:
		userID, ok := strings.CutPrefix(request.ClientID, apiKeyClientPrefix)
		if !ok {
			return nil, false
		}
		user, err := v.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, false
		}
		if user.APIKey == "" {
			return user, false
		}
		match := subtle.ConstantTimeCompare([]byte(user.APIKey), []byte(request.Password)) == 1
		return user, match
	}

	return nil, false
}

func (v *LoginValidator) twoFactorOutcome(ctx context.Context, request *models.AuthRequest, user *models.User, org *models.Organization) *models.AuthOutcome {
	challenge, err := v.twoFactor.BuildChallenge(ctx, user, org)
	if err != nil {
		if errors.Is(err, models.ErrNoTwoFactorProviders) {
			return v.errorOutcome(ctx, request, user, msgNoProviders, false)
		}
		v.logger.Error("failed to build two-factor challenge",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return v.errorOutcome(ctx, request, user, msgInvalidCredentials, false)
	}

	policy, err := v.policies.GetMasterPasswordPolicy(ctx, user)
	if err != nil {
		v.logger.Error("failed to load master password policy",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	} else {
		challenge.MasterPasswordPolicy = policy
	}

	return models.NewTwoFactorOutcome(challenge)
}

func (v *LoginValidator) buildSuccess(ctx context.Context, request *models.AuthRequest, user *models.User, device *models.Device, sendRememberToken bool) *models.AuthOutcome {
	v.logEvent(ctx, user, models.EventUserLoggedIn, request.RemoteIP)

	claims := map[string]string{
		"device": device.Identifier,
	}
	if request.SsoOrganizationID != "" {
		claims["organizationId"] = request.SsoOrganizationID
	}

	fields := make(map[string]any)
	if user.PrivateKey != "" {
		fields["PrivateKey"] = user.PrivateKey
	}
	if user.Key != "" {
		fields["Key"] = user.Key
	}

	policy, err := v.policies.GetMasterPasswordPolicy(ctx, user)
	if err != nil {
		v.logger.Error("failed to load master password policy",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}
	fields["MasterPasswordPolicy"] = policy
	fields["ForcePasswordReset"] = user.ForcePasswordReset
	fields["ResetMasterPassword"] = !user.HasMasterPassword()
	fields["Kdf"] = int(user.Kdf)
	fields["KdfIterations"] = user.KdfIterations
	fields["KdfMemory"] = user.KdfMemory
	fields["KdfParallelism"] = user.KdfParallelism
	decryptionOptions := v.decryptionOptions.Build(ctx, user, device, v.lookupSsoConfig(ctx, request))
	fields["UserDecryptionOptions"] = decryptionOptions
	if decryptionOptions.KeyConnectorOption != nil {
		// Older clients read the connector URL from the top level.
		fields["KeyConnectorUrl"] = decryptionOptions.KeyConnectorOption.KeyConnectorURL
	}

	if sendRememberToken {
		token, err := v.twoFactor.GenerateRememberToken(user, device.Identifier)
		if err != nil {
			v.logger.Error("failed to generate remember token",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		} else {
			fields["TwoFactorToken"] = token
		}
	}

	v.resetFailedAuth(ctx, user)

	v.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		IPAddress: request.RemoteIP,
		GrantType: request.GrantType,
		DeviceID:  device.Identifier,
		Success:   true,
	})

	return models.NewSuccessOutcome(&models.SuccessResult{
		User:   user,
		Device: device,
		Claims: claims,
		Fields: fields,
	})
}

func (v *LoginValidator) lookupSsoConfig(ctx context.Context, request *models.AuthRequest) *models.SsoConfiguration {
	if request.SsoOrganizationID == "" {
		return nil
	}
	ssoConfig, err := v.ssoConfigRepo.GetByOrganizationID(ctx, request.SsoOrganizationID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			v.logger.Error("failed to load sso configuration",
				slog.String("organization_id", request.SsoOrganizationID),
				slog.Any("error", err))
		}
		return nil
	}
	return ssoConfig
}

// updateFailedAuth records a failed attempt and, when the attempt comes from
// an unknown device and the count lands exactly on the ceiling, warns the
// account owner by email. Exactly-on keeps the warning to a single send per
// streak of failures.
func (v *LoginValidator) updateFailedAuth(ctx context.Context, user *models.User, request *models.AuthRequest, twoFactorInvalid, unknownDevice bool) {
	if user == nil {
		return
	}

	now := time.Now().UTC()
	user.FailedLoginCount++
	user.LastFailedLoginDate = &now
	if err := v.userRepo.Replace(ctx, user); err != nil {
		v.logger.Error("failed to persist failed-auth state",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return
	}

	ceiling := v.config.FailedLoginCeiling
	if unknownDevice && ceiling > 0 && user.FailedLoginCount == ceiling {
		var mailErr error
		if twoFactorInvalid {
			mailErr = v.mail.SendFailedTwoFactorAttemptsEmail(ctx, user.Email, now, request.RemoteIP)
		} else {
			mailErr = v.mail.SendFailedLoginAttemptsEmail(ctx, user.Email, now, request.RemoteIP)
		}
		if mailErr != nil {
			v.logger.Error("failed to send failed-attempts email",
				slog.String("user_id", user.ID),
				slog.Any("error", mailErr))
		}
	}
}

// resetFailedAuth clears the failure streak, skipping the write when there
// is nothing to clear.
func (v *LoginValidator) resetFailedAuth(ctx context.Context, user *models.User) {
	if user.FailedLoginCount == 0 && user.LastFailedLoginDate == nil {
		return
	}
	user.FailedLoginCount = 0
	user.LastFailedLoginDate = nil
	if err := v.userRepo.Replace(ctx, user); err != nil {
		v.logger.Error("failed to reset failed-auth state",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}
}

func (v *LoginValidator) logEvent(ctx context.Context, user *models.User, eventType models.EventType, remoteIP string) {
	event := &models.Event{
		UserID:    user.ID,
		Type:      eventType,
		IPAddress: remoteIP,
		Date:      time.Now().UTC(),
	}
	if err := v.eventRepo.Create(ctx, event); err != nil {
		v.logger.Error("failed to record event",
			slog.String("user_id", user.ID),
			slog.Int("event_type", int(eventType)),
			slog.Any("error", err))
	}
}

// errorOutcome records the failed-login event for a resolved user, applies
// the anti-timing delay, and shapes the terminal error.
func (v *LoginValidator) errorOutcome(ctx context.Context, request *models.AuthRequest, user *models.User, message string, twoFactorError bool) *models.AuthOutcome {
	userID := ""
	if user != nil {
		userID = user.ID
		eventType := models.EventUserFailedLogIn
		if twoFactorError {
			eventType = models.EventUserFailedLogIn2FA
		}
		v.logEvent(ctx, user, eventType, request.RemoteIP)
	}
	v.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login",
		UserID:        userID,
		IPAddress:     request.RemoteIP,
		GrantType:     request.GrantType,
		Success:       false,
		FailureReason: message,
	})

	v.timing.Wait()
	return models.NewErrorOutcome(message, twoFactorError)
}
