package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
	pkghttp "github.com/mportier/vaultgate/pkg/http"
)

// TokenRequestValidator is the single operation the token endpoint drives.
type TokenRequestValidator interface {
	Validate(ctx context.Context, request *models.AuthRequest) *models.AuthOutcome
}

// TokenHandler serves the OAuth2-style token endpoint. Outcome shaping is
// delegated to an OutcomeWriter so alternate response formats can plug in
// without touching the validation flow.
type TokenHandler struct {
	validator      TokenRequestValidator
	sessions       *auth.SessionTokenManager
	writer         OutcomeWriter
	trustedProxies []string
}

func NewTokenHandler(validator TokenRequestValidator, sessions *auth.SessionTokenManager, writer OutcomeWriter, trustedProxies []string) *TokenHandler {
	return &TokenHandler{
		validator:      validator,
		sessions:       sessions,
		writer:         writer,
		trustedProxies: trustedProxies,
	}
}

// Token handles POST /connect/token for password, authorization_code, and
// client_credentials grants.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	request := &models.AuthRequest{
		GrantType: r.PostFormValue("grant_type"),
		ClientID:  r.PostFormValue("client_id"),
		Username:  strings.ToLower(strings.TrimSpace(r.PostFormValue("username"))),
		Password:  r.PostFormValue("password"),

		TwoFactorToken:    r.PostFormValue("twoFactorToken"),
		TwoFactorProvider: r.PostFormValue("twoFactorProvider"),
		TwoFactorRemember: r.PostFormValue("twoFactorRemember") == "1",

		Device: models.DeviceDescriptor{
			Identifier: r.PostFormValue("deviceIdentifier"),
			Type:       r.PostFormValue("deviceType"),
			Name:       r.PostFormValue("deviceName"),
			PushToken:  r.PostFormValue("devicePushToken"),
		},

		RemoteIP: pkghttp.ExtractClientIP(r, h.trustedProxies),
	}

	switch request.GrantType {
	case models.GrantTypePassword, models.GrantTypeClientCredentials:

	case models.GrantTypeAuthorizationCode:
		// The code is a signed SSO grant minted by the SSO callback.
		userID, orgID, err := h.sessions.VerifySsoGrant(r.PostFormValue("code"))
		if err != nil {
			h.writer.WriteError(w, "Invalid authorization code.", false)
			return
		}
		request.Subject = userID
		request.SsoOrganizationID = orgID

	default:
		pkghttp.WriteBadRequest(w, "Unsupported grant type")
		return
	}

	outcome := h.validator.Validate(r.Context(), request)

	switch outcome.Kind {
	case models.OutcomeSuccess:
		h.writer.WriteSuccess(w, request, outcome.Success)
	case models.OutcomeTwoFactorRequired:
		h.writer.WriteTwoFactorRequired(w, outcome.TwoFactor)
	case models.OutcomeSsoRequired:
		h.writer.WriteSsoRequired(w)
	default:
		h.writer.WriteError(w, outcome.ErrorMessage, outcome.TwoFactorError)
	}
}
