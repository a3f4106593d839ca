package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/planpago/planpago/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing verified session claims in context
	ClaimsContextKey contextKey = "claims"
)

// AccountDirectory is the subset of the account store the middleware needs.
type AccountDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// SessionMiddleware validates bearer session tokens and injects the verified
// claims into the request context. Step-up tokens are rejected here: they
// prove only partial progress through the login flow.
func SessionMiddleware(tc *TokenCodec) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tc.VerifyType(parts[1], TokenTypeSession)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin allows the request through only when the session subject is an
// administrator. Must be mounted inside SessionMiddleware.
func RequireAdmin(directory AccountDirectory) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			account, err := directory.GetByID(r.Context(), claims.AccountID())
			if err != nil || !account.IsAdmin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext extracts verified session claims from the context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}
