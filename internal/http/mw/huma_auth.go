package mw

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/wandersure/wandersure-api/internal/auth"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// OperationMetadataKey is the key type for additional operation requirements.
type OperationMetadataKey string

// MetaKeyRequireScope is the metadata key naming a scope the caller must hold.
const MetaKeyRequireScope OperationMetadataKey = "requireScope"

// HumaAuth returns a Huma middleware that authenticates operations whose
// security requirements include the bearer scheme. Operations without a
// security requirement pass through untouched, as does everything when the
// verifier runs open.
func HumaAuth(api huma.API, verifier *auth.Verifier) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		if verifier.Open() {
			next(ctx)
			return
		}

		// An identity established by the router-level auth middleware is
		// reused rather than verified a second time.
		if identity := GetIdentity(ctx.Context()); identity != nil {
			if scope := requiredScope(op); scope != "" && !identity.HasScope(scope) {
				huma.WriteErr(api, ctx, http.StatusForbidden,
					"insufficient scope",
					fmt.Errorf("scope %s not granted to client %s", scope, identity.ClientID))
				return
			}
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		if authHeader == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing authorization header")
			return
		}

		stdCtx := ctx.Context()
		identity, err := verifier.Verify(stdCtx, bearerToken(authHeader))
		if err != nil {
			slog.Debug("agent auth failed", "error", err)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if scope := requiredScope(op); scope != "" && !identity.HasScope(scope) {
			huma.WriteErr(api, ctx, http.StatusForbidden,
				"insufficient scope",
				fmt.Errorf("scope %s not granted to client %s", scope, identity.ClientID))
			return
		}

		newCtx := context.WithValue(stdCtx, IdentityKey, identity)
		next(huma.WithContext(ctx, newCtx))
	}
}

// operationRequiresAuth checks if the operation has bearerAuth in its
// security requirements.
func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}

// requiredScope returns the scope named in operation metadata, if any.
func requiredScope(op *huma.Operation) string {
	if op.Metadata == nil {
		return ""
	}
	if val, ok := op.Metadata[string(MetaKeyRequireScope)]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
