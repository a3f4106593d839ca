package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/handlers"
	"github.com/planpago/planpago/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	adminHandler *handlers.AdminHandler,
	tokens *auth.TokenCodec,
	directory auth.AccountDirectory,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/users", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/users/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/users/verify-code", authHandler.VerifyCode)

	// Reached from the emailed consent link; the token is the credential.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).
		Get("/users/admin/impersonate-confirm/{token}", adminHandler.ImpersonateConfirm)

	// Protected routes - session token required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokens))

		r.Get("/users/me", profileHandler.Me)
		r.Delete("/users/me", profileHandler.DeleteMe)
		r.Post("/users/me/change-request", profileHandler.ChangeRequest)
		r.Post("/users/me/change-confirm", profileHandler.ChangeConfirm)
		r.Post("/users/me/totp/setup", profileHandler.TOTPSetup)
		r.Post("/users/me/totp/enable", profileHandler.TOTPEnable)
		r.Post("/users/me/totp/disable", profileHandler.TOTPDisable)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(directory))
			r.Post("/users/admin/impersonate-request", adminHandler.ImpersonateRequest)
			r.Get("/users/admin/impersonate-status/{id}", adminHandler.ImpersonateStatus)
			r.Post("/users/admin/impersonate/{targetId}", adminHandler.Impersonate)
			r.Get("/users/admin/accounts", adminHandler.ListAccounts)
			r.Delete("/users/admin/accounts/{id}", adminHandler.DeleteAccount)
		})
	})
}
