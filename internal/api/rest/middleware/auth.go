// Package middleware provides HTTP authentication middleware for the
// REST API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticator validates Bearer tokens and enforces role thresholds.
type Authenticator struct {
	auth   *auth.Service
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator backed by the auth service.
func NewAuthenticator(a *auth.Service, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{auth: a, logger: logger}
}

// Middleware validates the Authorization header and injects the claims
// into the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		claims, err := a.auth.Validate(token)
		if err != nil {
			a.logger.Debug("token validation failed", zap.Error(err))
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps a handler so it only runs for principals at or above
// the given role.
func (a *Authenticator) RequireRole(role auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r.Context())
		if claims == nil {
			unauthorized(w, "missing bearer token")
			return
		}
		if !claims.Role.AtLeast(role) {
			forbidden(w, "insufficient role")
			return
		}
		next(w, r)
	}
}

// ClaimsFrom extracts the authenticated claims, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// WithClaims returns a context carrying the claims. Used by handler tests.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusForbidden, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
