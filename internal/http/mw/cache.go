package mw

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wandersure/wandersure-api/internal/constants"
)

// CachePolicy defines caching behavior for a route pattern.
type CachePolicy struct {
	// Pattern is the route pattern to match (prefix match).
	Pattern string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are the cache policies to apply, matched in order.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header).
	DefaultPolicy string
}

// DefaultCacheConfig returns cache defaults for the API. Health is the only
// CDN-cacheable endpoint; probes must reflect real-time state; everything
// else carries per-user payloads and stays private.
func DefaultCacheConfig() CacheConfig {
	shortSecs := int(constants.CacheMaxAgeShort.Seconds())

	return CacheConfig{
		DefaultPolicy: "private, no-cache",
		Policies: []CachePolicy{
			{Pattern: "/api/v1/health", CacheControl: fmt.Sprintf("public, max-age=%d", shortSecs)},

			{Pattern: "/healthz", CacheControl: "no-store"},
			{Pattern: "/readyz", CacheControl: "no-store"},

			// Webhooks are machine-to-machine; caching makes no sense.
			{Pattern: "/webhook/", CacheControl: "no-store"},
		},
	}
}

// CacheHeaders returns middleware that sets Cache-Control headers based on
// the request path. Only GET and HEAD responses get cacheable policies;
// other methods are always no-store.
func CacheHeaders(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			for _, policy := range cfg.Policies {
				if strings.HasPrefix(r.URL.Path, policy.Pattern) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
