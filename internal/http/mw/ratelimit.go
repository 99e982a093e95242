package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/wandersure/wandersure-api/internal/constants"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// ClientRequestsPerMinute limits authenticated agent clients.
	// A value of 0 disables per-client limiting.
	ClientRequestsPerMinute int
	// IPRequestsPerMinute is the fallback limit for unauthenticated requests.
	IPRequestsPerMinute int
}

// DefaultRateLimitConfig returns the stock limits: generous for provisioned
// agents, tighter for anonymous callers.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		ClientRequestsPerMinute: constants.AgentRateLimitPerMinute,
		IPRequestsPerMinute:     constants.GlobalIPRateLimitPerMinute,
	}
}

// RateLimitByClient returns a middleware that rate limits by the
// authenticated client ID, falling back to the source IP when no identity is
// present. Apply after the auth middleware.
func RateLimitByClient(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.ClientRequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := httprate.NewRateLimiter(
		cfg.ClientRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			identity := GetIdentity(r.Context())
			if identity == nil || identity.ClientID == "" {
				return httprate.KeyByIP(r)
			}
			return "client:" + identity.ClientID, nil
		}),
	)

	return func(next http.Handler) http.Handler {
		return limiter.Handler(next)
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address. Used as
// the global fallback in front of everything, including the webhook route.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
