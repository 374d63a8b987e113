package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zlovtnik/leasebill/internal/models"
	"github.com/zlovtnik/leasebill/pkg/auth"
)

type contextKey string

const (
	contextKeyTenantID  contextKey = "tenant_id"
	contextKeyClaims    contextKey = "claims"
	contextKeyRequestID contextKey = "request_id"
)

// AuthMiddleware validates bearer tokens and stores the caller's claims.
// Tokens without a tenant are refused: every billing query is tenant scoped.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := auth.ValidateToken(token, jwtSecret)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			if claims.TenantID == "" {
				writeUnauthorized(w, "token carries no tenant")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a context carrying the caller's claims
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, contextKeyTenantID, claims.TenantID)
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// GetTenantID retrieves the tenant ID from context
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyTenantID).(string); ok {
		return v
	}
	return ""
}

// GetClaims retrieves the full claims from context
func GetClaims(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(contextKeyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeEnvelope(w, http.StatusUnauthorized, models.ErrorResponse("UNAUTHORIZED", message, nil))
}
