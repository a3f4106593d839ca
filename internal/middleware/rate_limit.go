package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	RequestLimit int
	Window       time.Duration
}

// DefaultAuthRateLimit bounds the unauthenticated auth endpoints. This is a
// transport-level backstop per IP; the per-identity throttle inside the login
// flow is the real credential-stuffing control.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestLimit: 30,
		Window:       time.Minute,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestLimit,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"Too many requests"}`))
		}),
	)
}
