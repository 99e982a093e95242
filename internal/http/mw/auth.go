// Package mw contains HTTP middleware for the wandersure-api.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/wandersure/wandersure-api/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated agent identity.
	IdentityKey ContextKey = "agent_identity"
)

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

// Auth returns middleware that authenticates every request against the
// verifier. An open verifier (no key material configured) lets requests
// through without an identity.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier.Open() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(r.Context(), bearerToken(authHeader))
			if err != nil {
				http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth validates credentials when present but lets unauthenticated
// requests through without an identity.
func OptionalAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || verifier.Open() {
				next.ServeHTTP(w, r)
				return
			}

			if identity, err := verifier.Verify(r.Context(), bearerToken(authHeader)); err == nil {
				ctx := context.WithValue(r.Context(), IdentityKey, identity)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity retrieves the authenticated identity from context. Returns nil
// for unauthenticated requests (open verifier or public routes).
func GetIdentity(ctx context.Context) *auth.Identity {
	identity, ok := ctx.Value(IdentityKey).(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireScope returns middleware that requires a scope on API key callers.
// Service tokens and key files without scopes grant everything.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				// Open verifier: nothing to check against.
				next.ServeHTTP(w, r)
				return
			}
			if !identity.HasScope(scope) {
				http.Error(w, `{"error":"insufficient scope"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
