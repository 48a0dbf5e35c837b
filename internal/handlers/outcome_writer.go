package handlers

import (
	"log/slog"
	"net/http"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
	pkghttp "github.com/mportier/vaultgate/pkg/http"
)

// OutcomeWriter shapes a terminal authentication outcome into a
// protocol-specific response. The token endpoint is written against this
// interface so wire formats vary independently of the validation flow.
type OutcomeWriter interface {
	WriteSuccess(w http.ResponseWriter, request *models.AuthRequest, result *models.SuccessResult)
	WriteTwoFactorRequired(w http.ResponseWriter, challenge *models.TwoFactorChallenge)
	WriteSsoRequired(w http.ResponseWriter)
	WriteError(w http.ResponseWriter, message string, twoFactorError bool)
}

type errorModel struct {
	Message string `json:"Message"`
	Object  string `json:"Object"`
}

// JSONOutcomeWriter is the default wire format: an OAuth2 token response on
// success, and invalid_grant errors carrying structured payloads the
// password-manager clients understand.
type JSONOutcomeWriter struct {
	tokens *auth.TokenManager
	logger *slog.Logger
}

func NewJSONOutcomeWriter(tokens *auth.TokenManager, logger *slog.Logger) *JSONOutcomeWriter {
	return &JSONOutcomeWriter{tokens: tokens, logger: logger}
}

func (jw *JSONOutcomeWriter) WriteSuccess(w http.ResponseWriter, request *models.AuthRequest, result *models.SuccessResult) {
	accessToken, err := jw.tokens.GenerateAccessToken(result.User, result.Claims)
	if err != nil {
		jw.logger.Error("failed to issue access token",
			slog.String("user_id", result.User.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	body := map[string]any{
		"access_token": accessToken,
		"expires_in":   int(jw.tokens.AccessTokenExpiry().Seconds()),
		"token_type":   "Bearer",
		"scope":        "api offline_access",
	}

	// API-key clients get no refresh token
	if request.GrantType != models.GrantTypeClientCredentials {
		refreshToken, err := jw.tokens.GenerateRefreshToken(result.User, result.Claims)
		if err != nil {
			jw.logger.Error("failed to issue refresh token",
				slog.String("user_id", result.User.ID),
				slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		body["refresh_token"] = refreshToken
	}

	for k, v := range result.Fields {
		body[k] = v
	}

	pkghttp.WriteJSON(w, http.StatusOK, body)
}

func (jw *JSONOutcomeWriter) WriteTwoFactorRequired(w http.ResponseWriter, challenge *models.TwoFactorChallenge) {
	providerTypes := make([]string, 0, len(challenge.Providers))
	providers2 := make(map[string]map[string]any, len(challenge.Providers))
	for t, params := range challenge.Providers {
		providerTypes = append(providerTypes, t.String())
		providers2[t.String()] = params
	}

	body := map[string]any{
		"error":               "invalid_grant",
		"error_description":   "Two factor required.",
		"TwoFactorProviders":  providerTypes,
		"TwoFactorProviders2": providers2,
	}
	if challenge.MasterPasswordPolicy != nil {
		body["MasterPasswordPolicy"] = challenge.MasterPasswordPolicy
	}
	if challenge.Email != "" {
		body["Email"] = challenge.Email
		body["SsoEmail2faSessionToken"] = challenge.EmailSessionToken
	}

	pkghttp.WriteJSON(w, http.StatusBadRequest, body)
}

func (jw *JSONOutcomeWriter) WriteSsoRequired(w http.ResponseWriter) {
	pkghttp.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"error":             "invalid_grant",
		"error_description": "Sso authentication required.",
		"ErrorModel": errorModel{
			Message: "SSO authentication is required.",
			Object:  "error",
		},
	})
}

func (jw *JSONOutcomeWriter) WriteError(w http.ResponseWriter, message string, twoFactorError bool) {
	description := "invalid_username_or_password"
	if twoFactorError {
		description = "invalid_two_factor"
	}
	pkghttp.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"error":             "invalid_grant",
		"error_description": description,
		"ErrorModel": errorModel{
			Message: message,
			Object:  "error",
		},
	})
}
