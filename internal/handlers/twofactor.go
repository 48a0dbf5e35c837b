package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/services"
	pkghttp "github.com/mportier/vaultgate/pkg/http"
)

// TwoFactorHandler serves the authenticated two-factor settings endpoints:
// listing configured providers, enrolling authenticator and email, and
// disabling a provider.
type TwoFactorHandler struct {
	enrollment *services.EnrollmentService
	logger     *slog.Logger
}

func NewTwoFactorHandler(enrollment *services.EnrollmentService, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{enrollment: enrollment, logger: logger}
}

// ProviderStatus is one row in the provider listing.
type ProviderStatus struct {
	Type    models.TwoFactorProviderType `json:"type"`
	Enabled bool                         `json:"enabled"`
}

// ActivateAuthenticatorRequest confirms possession of a pending TOTP secret.
type ActivateAuthenticatorRequest struct {
	Secret string `json:"secret" validate:"required"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// EnableEmailRequest confirms receipt of a setup code sent to the account
// email.
type EnableEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableProviderRequest names the provider to remove.
type DisableProviderRequest struct {
	Type string `json:"type" validate:"required"`
}

// List handles GET /two-factor.
func (h *TwoFactorHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	statuses := make([]ProviderStatus, 0, len(user.TwoFactorProviders))
	for t, p := range user.TwoFactorProviders {
		statuses = append(statuses, ProviderStatus{Type: t, Enabled: p.Enabled})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"providers": statuses})
}

// BeginAuthenticator handles POST /two-factor/authenticator. The generated
// secret is returned to the client and only persisted once activated.
func (h *TwoFactorHandler) BeginAuthenticator(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	setup, err := h.enrollment.BeginAuthenticator(user)
	if err != nil {
		h.logger.Error("failed to begin authenticator enrollment",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// ActivateAuthenticator handles PUT /two-factor/authenticator.
func (h *TwoFactorHandler) ActivateAuthenticator(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ActivateAuthenticatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.enrollment.ActivateAuthenticator(r.Context(), user, req.Secret, req.Code); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid verification code")
			return
		}
		h.logger.Error("failed to activate authenticator",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

// SendEmailCode handles POST /two-factor/email/send-code.
func (h *TwoFactorHandler) SendEmailCode(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.enrollment.SendEmailSetupCode(r.Context(), user); err != nil {
		h.logger.Error("failed to send email setup code",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnableEmail handles PUT /two-factor/email.
func (h *TwoFactorHandler) EnableEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req EnableEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.enrollment.EnableEmail(r.Context(), user, req.Code); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid verification code")
			return
		}
		h.logger.Error("failed to enable email two-factor",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

// Disable handles DELETE /two-factor.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	providerType, err := models.ParseTwoFactorProviderType(req.Type)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Unknown provider type")
		return
	}

	if err := h.enrollment.Disable(r.Context(), user, providerType); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Provider not enabled")
			return
		}
		h.logger.Error("failed to disable two-factor provider",
			slog.String("user_id", user.ID),
			slog.String("provider_type", providerType.String()),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"enabled": false})
}
