// Package auth verifies agent gateway credentials: provisioned API keys and
// HS256 service tokens minted by the agent frontends.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wandersure/wandersure-api/internal/config"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrUnknownAPIKey = errors.New("unknown api key")
	ErrMissingClaims = errors.New("missing required claims")
)

// KeyPrefix marks provisioned agent API keys. Credentials without it are
// treated as service tokens.
const KeyPrefix = "ws_"

// ServiceClaims are the claims carried in an HS256 service token.
type ServiceClaims struct {
	jwt.RegisteredClaims
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

// Identity describes an authenticated caller.
type Identity struct {
	ClientID string
	Name     string
	Scopes   []string
	IsAPIKey bool
}

// HasScope reports whether the identity carries the given scope. An empty
// scope list and the "*" scope both grant everything.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	if len(id.Scopes) == 0 {
		return true
	}
	for _, s := range id.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Verifier checks agent credentials against the static key list, the S3 key
// overlay and the shared service-token secret. With no key material
// configured at all it runs open and accepts every request.
type Verifier struct {
	secret  []byte
	keys    []string
	overlay *config.AgentKeyLoader
	logger  *slog.Logger
}

// NewVerifier builds a verifier from the configured secret and static key
// list. overlay may be nil.
func NewVerifier(secret string, staticKeys []string, overlay *config.AgentKeyLoader, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{
		keys:    staticKeys,
		overlay: overlay,
		logger:  logger,
	}
	if secret != "" {
		v.secret = []byte(secret)
	}
	if v.Open() {
		logger.Warn("agent gateway auth NOT configured - accepting unauthenticated requests")
	}
	return v
}

// Open reports whether the verifier has no key material at all.
func (v *Verifier) Open() bool {
	if len(v.secret) > 0 || len(v.keys) > 0 {
		return false
	}
	return v.overlay == nil || !v.overlay.Enabled()
}

// Verify authenticates a bearer credential, dispatching on the ws_ prefix.
func (v *Verifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if strings.HasPrefix(credential, KeyPrefix) {
		return v.VerifyAPIKey(ctx, credential)
	}
	return v.VerifyToken(credential)
}

// VerifyAPIKey matches a provisioned agent key. Static keys are compared in
// constant time; overlay keys are looked up in the refreshed snapshot.
func (v *Verifier) VerifyAPIKey(ctx context.Context, key string) (*Identity, error) {
	for i, known := range v.keys {
		if subtle.ConstantTimeCompare([]byte(known), []byte(key)) == 1 {
			return &Identity{
				ClientID: fmt.Sprintf("agent-key-%d", i+1),
				IsAPIKey: true,
			}, nil
		}
	}

	if v.overlay != nil && v.overlay.Enabled() {
		v.overlay.MaybeRefresh(ctx)
		if match := v.overlay.Lookup(key); match != nil {
			clientID := match.ClientID
			if clientID == "" {
				clientID = match.Name
			}
			return &Identity{
				ClientID: clientID,
				Name:     match.Name,
				Scopes:   match.Scopes,
				IsAPIKey: true,
			}, nil
		}
	}

	return nil, ErrUnknownAPIKey
}

// VerifyToken validates an HS256 service token and extracts the client
// identity. A token must carry a client_id claim or a subject.
func (v *Verifier) VerifyToken(tokenString string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	clientID := claims.ClientID
	if clientID == "" {
		clientID = claims.Subject
	}
	if clientID == "" {
		return nil, ErrMissingClaims
	}

	return &Identity{
		ClientID: clientID,
		Scopes:   claims.Scopes,
	}, nil
}

// SignServiceToken mints an HS256 token for clientID, valid for ttl.
func SignServiceToken(secret, clientID string, scopes []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}
	now := time.Now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ClientID: clientID,
		Scopes:   scopes,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
