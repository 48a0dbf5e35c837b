package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/handlers"
	"github.com/mportier/vaultgate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	tokenHandler *handlers.TokenHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	deviceHandler *handlers.DeviceHandler,
	tokenManager *auth.TokenManager,
	users auth.UserFetcher,
) {
	rateLimitConfig := middleware.DefaultTokenRateLimit()

	// Public: the token endpoint carries its own anti-enumeration and
	// anti-timing protections, rate limiting is the outer layer
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/connect/token", tokenHandler.Token)

	// Protected routes - bearer token required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, users))

		r.Get("/two-factor", twoFactorHandler.List)
		r.Post("/two-factor/authenticator", twoFactorHandler.BeginAuthenticator)
		r.Put("/two-factor/authenticator", twoFactorHandler.ActivateAuthenticator)
		r.Post("/two-factor/email/send-code", twoFactorHandler.SendEmailCode)
		r.Put("/two-factor/email", twoFactorHandler.EnableEmail)
		r.Delete("/two-factor", twoFactorHandler.Disable)

		r.Get("/devices", deviceHandler.List)
	})
}
