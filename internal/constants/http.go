// Package constants defines centralized limits and catalog data for the
// WanderSure API. Change values here to update behavior across the entire
// application.
package constants

import "time"

// Request timeout classes. The extended class covers the claims insight
// pipeline, whose synthesis stage alone may run for five minutes.
const (
	// DefaultRequestTimeout applies to most endpoints.
	DefaultRequestTimeout = 30 * time.Second

	// ExtendedRequestTimeout applies to LLM-heavy endpoints.
	ExtendedRequestTimeout = 6 * time.Minute

	// ShutdownTimeout is how long in-flight requests get to drain on SIGTERM.
	ShutdownTimeout = 30 * time.Second
)

// Request body limits.
const (
	// MaxRequestBodyBytes caps regular API request bodies.
	MaxRequestBodyBytes = 1 << 20 // 1 MB

	// WebhookMaxBodyBytes caps Stripe webhook payloads.
	WebhookMaxBodyBytes = 64 * 1024
)

// Rate limits.
const (
	// GlobalIPRateLimitPerMinute is the per-IP ceiling applied in front of
	// everything, including unauthenticated routes.
	GlobalIPRateLimitPerMinute = 100

	// AgentRateLimitPerMinute limits each authenticated agent client.
	AgentRateLimitPerMinute = 600

	// ThrottleLimit bounds concurrent in-flight requests server-wide.
	ThrottleLimit = 100
)

// Cache-Control ages for the few cacheable endpoints.
const (
	CacheMaxAgeShort  = 30 * time.Second
	CacheMaxAgeMedium = 5 * time.Minute
)

// DefaultSearchK is the result count used when a caller omits top_k.
const DefaultSearchK = 5

// DefaultClaimsTopics is the fan-out used when a caller omits sql_num.
const DefaultClaimsTopics = 4

// DefaultListLimit is the page size used when a caller omits limit on
// memory searches and payment listings.
const DefaultListLimit = 10
