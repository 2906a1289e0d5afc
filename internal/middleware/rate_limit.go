package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit returns the per-IP limit for the auth endpoints
func DefaultAuthRateLimit(perMinute int) RateLimitConfig {
	if perMinute <= 0 {
		perMinute = 30
	}
	return RateLimitConfig{Requests: perMinute, Window: time.Minute}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, string(models.CodeRateLimited), "Too many requests. Please try again later.")
		}),
	)
}
