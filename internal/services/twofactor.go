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

// DuoVerifier validates Duo second-factor tokens against the external Duo
// service, for both individual and organization Duo providers.
type DuoVerifier interface {
	CanGenerate(provider *models.TwoFactorProvider) bool
	Generate(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (map[string]any, error)
	GenerateAuthURL(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (string, error)
	Validate(ctx context.Context, token string, provider *models.TwoFactorProvider, user *models.User) (bool, error)
}

// YubiKeyVerifier validates YubiKey OTPs against the external validation
// service.
type YubiKeyVerifier interface {
	Validate(ctx context.Context, otp string, provider *models.TwoFactorProvider) (bool, error)
}

// WebAuthnVerifier generates assertion challenges and validates signed
// assertions for registered WebAuthn credentials.
type WebAuthnVerifier interface {
	GenerateChallenge(ctx context.Context, user *models.User, provider *models.TwoFactorProvider) (map[string]any, error)
	Validate(ctx context.Context, token string, user *models.User, provider *models.TwoFactorProvider) (bool, error)
}

// TwoFactorEngine determines whether a login needs a second factor,
// enumerates the available providers into a challenge, and verifies
// submitted tokens.
type TwoFactorEngine struct {
	orgRepo    repositories.OrganizationRepository
	abilities  *OrganizationAbilitiesCache
	totp       *auth.TOTPManager
	emailCodes *EmailCodeService
	remember   *auth.RememberTokenManager
	sessions   *auth.SessionTokenManager
	duo        DuoVerifier
	yubikey    YubiKeyVerifier
	webauthn   WebAuthnVerifier
	features   FeatureService
	logger     *slog.Logger
}

func NewTwoFactorEngine(
	orgRepo repositories.OrganizationRepository,
	abilities *OrganizationAbilitiesCache,
	totp *auth.TOTPManager,
	emailCodes *EmailCodeService,
	remember *auth.RememberTokenManager,
	sessions *auth.SessionTokenManager,
	duo DuoVerifier,
	yubikey YubiKeyVerifier,
	webauthn WebAuthnVerifier,
	features FeatureService,
	logger *slog.Logger,
) *TwoFactorEngine {
	return &TwoFactorEngine{
		orgRepo:    orgRepo,
		abilities:  abilities,
		totp:       totp,
		emailCodes: emailCodes,
		remember:   remember,
		sessions:   sessions,
		duo:        duo,
		yubikey:    yubikey,
		webauthn:   webauthn,
		features:   features,
		logger:     logger,
	}
}

// RequiresTwoFactor reports whether a second factor is required, and when an
// organization enforces it, the first such organization with a usable
// provider. Client-credentials (API key) grants are exempt.
func (e *TwoFactorEngine) RequiresTwoFactor(ctx context.Context, user *models.User, grantType string) (bool, *models.Organization, error) {
	if grantType == models.GrantTypeClientCredentials {
		return false, nil, nil
	}

	individualRequired := len(user.ValidTwoFactorProviders()) > 0

	// An organization enforces via its ability flag even when it has not
	// configured an org-level provider; that combination must still demand a
	// second factor so the challenge step can report the empty provider set.
	orgRequired := false
	var firstEnabledOrg *models.Organization

	memberships, err := e.orgRepo.GetMemberships(ctx, user.ID, models.OrganizationUserAccepted)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	if len(memberships) > 0 {
		abilities, err := e.abilities.GetOrganizationAbilities(ctx)
		if err != nil {
			return false, nil, err
		}

		for _, m := range memberships {
			if a, ok := abilities[m.OrganizationID]; ok && a.Enabled && a.Using2FA {
				orgRequired = true
				break
			}
		}

		if orgRequired {
			orgs, err := e.orgRepo.GetManyByUserID(ctx, user.ID)
			if err != nil {
				return false, nil, fmt.Errorf("failed to load organizations: %w", err)
			}
			for _, org := range orgs {
				if org.Enabled && org.TwoFactorIsEnabled() {
					firstEnabledOrg = org
					break
				}
			}
		}
	}

	return individualRequired || orgRequired, firstEnabledOrg, nil
}

type enabledProvider struct {
	Type     models.TwoFactorProviderType
	Provider *models.TwoFactorProvider
	FromOrg  bool
}

func (e *TwoFactorEngine) enumerateProviders(user *models.User, org *models.Organization) []enabledProvider {
	var providers []enabledProvider

	if org != nil {
		for t, p := range org.TwoFactorProviders {
			if p != nil && p.Enabled {
				providers = append(providers, enabledProvider{Type: t, Provider: p, FromOrg: true})
			}
		}
	}

	for _, t := range user.ValidTwoFactorProviders() {
		providers = append(providers, enabledProvider{Type: t, Provider: user.GetTwoFactorProvider(t)})
	}

	return providers
}

// BuildChallenge enumerates every enabled provider into a challenge with
// per-provider parameters. When email is the user's only provider, a code is
// sent immediately. Returns models.ErrNoTwoFactorProviders when a second
// factor is required but nothing is enumerable.
func (e *TwoFactorEngine) BuildChallenge(ctx context.Context, user *models.User, org *models.Organization) (*models.TwoFactorChallenge, error) {
	enabled := e.enumerateProviders(user, org)
	if len(enabled) == 0 {
		return nil, models.ErrNoTwoFactorProviders
	}

	challenge := &models.TwoFactorChallenge{
		Providers: make(map[models.TwoFactorProviderType]map[string]any, len(enabled)),
	}

	hasEmail := false
	for _, p := range enabled {
		params, err := e.buildProviderParams(ctx, user, org, p)
		if err != nil {
			e.logger.Error("failed to build two-factor params",
				slog.String("user_id", user.ID),
				slog.String("provider_type", p.Type.String()),
				slog.Any("error", err))
			continue
		}
		if params == nil {
			params = map[string]any{}
		}
		challenge.Providers[p.Type] = params
		if p.Type == models.TwoFactorProviderEmail {
			hasEmail = true
		}
	}

	if len(challenge.Providers) == 0 {
		return nil, models.ErrNoTwoFactorProviders
	}

	if hasEmail {
		challenge.Email = user.Email
		token, err := e.sessions.GenerateEmail2FASession(user)
		if err != nil {
			e.logger.Error("failed to generate email session token",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		} else {
			challenge.EmailSessionToken = token
		}
	}

	// Send the code now only when email is the sole way in
	if len(enabled) == 1 && enabled[0].Type == models.TwoFactorProviderEmail {
		if err := e.emailCodes.SendCode(ctx, user); err != nil {
			e.logger.Error("failed to auto-send two-factor email",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
	}

	return challenge, nil
}

func (e *TwoFactorEngine) buildProviderParams(ctx context.Context, user *models.User, org *models.Organization, p enabledProvider) (map[string]any, error) {
	switch p.Type {
	case models.TwoFactorProviderAuthenticator:
		return map[string]any{}, nil

	case models.TwoFactorProviderEmail:
		return map[string]any{"Email": pkglogger.SanitizedEmail(user.Email)}, nil

	case models.TwoFactorProviderDuo, models.TwoFactorProviderOrganizationDuo:
		if e.duo == nil || !e.duo.CanGenerate(p.Provider) {
			return nil, fmt.Errorf("duo provider not configured")
		}
		params, err := e.duo.Generate(ctx, p.Provider, user)
		if err != nil {
			return nil, err
		}
		if e.features.IsEnabled(FeatureDuoRedirect) {
			authURL, err := e.duo.GenerateAuthURL(ctx, p.Provider, user)
			if err != nil {
				return nil, err
			}
			params["AuthUrl"] = authURL
		}
		return params, nil

	case models.TwoFactorProviderYubiKey:
		nfc, _ := p.Provider.MetaData["Nfc"].(bool)
		return map[string]any{"Nfc": nfc}, nil

	case models.TwoFactorProviderWebAuthn:
		if e.webauthn == nil {
			return nil, fmt.Errorf("webauthn provider not configured")
		}
		return e.webauthn.GenerateChallenge(ctx, user, p.Provider)

	case models.TwoFactorProviderRemember:
		return nil, fmt.Errorf("remember is not a challengeable provider")
	}

	return nil, fmt.Errorf("unknown provider type %s", p.Type)
}

// Verify checks a submitted token against the named provider type. The
// dispatch is exhaustive over the closed provider set; anything else
// verifies false. Remember tokens bypass the enabled-provider check since
// remember is issued by the service itself, not configured by the user.
func (e *TwoFactorEngine) Verify(ctx context.Context, user *models.User, org *models.Organization, providerType models.TwoFactorProviderType, token, deviceIdentifier string) (bool, error) {
	switch providerType {
	case models.TwoFactorProviderRemember:
		return e.remember.Verify(user, deviceIdentifier, token), nil

	case models.TwoFactorProviderAuthenticator:
		provider := user.GetTwoFactorProvider(providerType)
		if provider == nil || !provider.Enabled {
			return false, nil
		}
		return e.totp.Validate(provider.MetaDataString("Key"), token), nil

	case models.TwoFactorProviderEmail:
		provider := user.GetTwoFactorProvider(providerType)
		if provider == nil || !provider.Enabled {
			return false, nil
		}
		return e.emailCodes.Verify(ctx, user, token), nil

	case models.TwoFactorProviderDuo:
		provider := user.GetTwoFactorProvider(providerType)
		if provider == nil || !provider.Enabled || e.duo == nil {
			return false, nil
		}
		return e.duo.Validate(ctx, token, provider, user)

	case models.TwoFactorProviderOrganizationDuo:
		if !org.TwoFactorProviderIsEnabled(providerType) || e.duo == nil {
			return false, nil
		}
		return e.duo.Validate(ctx, token, org.GetTwoFactorProvider(providerType), user)

	case models.TwoFactorProviderYubiKey:
		provider := user.GetTwoFactorProvider(providerType)
		if provider == nil || !provider.Enabled || e.yubikey == nil {
			return false, nil
		}
		return e.yubikey.Validate(ctx, token, provider)

	case models.TwoFactorProviderWebAuthn:
		provider := user.GetTwoFactorProvider(providerType)
		if provider == nil || !provider.Enabled || e.webauthn == nil {
			return false, nil
		}
		return e.webauthn.Validate(ctx, token, user, provider)
	}

	return false, nil
}

// GenerateRememberToken issues a remember-me token for the user's device,
// returned to clients that asked to skip future second-factor prompts.
func (e *TwoFactorEngine) GenerateRememberToken(user *models.User, deviceIdentifier string) (string, error) {
	return e.remember.Generate(user, deviceIdentifier)
}
