package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/mportier/vaultgate/internal/models"
	pkghttp "github.com/mportier/vaultgate/pkg/http"
)

type contextKey string

// UserContextKey holds the authenticated user on request contexts.
const UserContextKey contextKey = "authenticated_user"

// UserFetcher loads users for bearer-token validation.
type UserFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Middleware authenticates requests with a bearer access token and places
// the resolved user on the request context.
func Middleware(tm *TokenManager, users UserFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				pkghttp.WriteUnauthorized(w, "missing bearer token")
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			// The signing key depends on the user's security stamp, so the
			// subject is read unverified first and the signature checked
			// against the loaded user.
			unverified, err := tm.ParseUnverified(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid token")
				return
			}

			user, err := users.GetByID(r.Context(), unverified.Subject)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid token")
				return
			}

			claims, err := tm.Validate(user, tokenString)
			if err != nil || claims.Type != "access" {
				pkghttp.WriteUnauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user set by Middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}
