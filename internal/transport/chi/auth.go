package chi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/fundmatch/internal/logger"
)

// DefaultTenant is the tenant used when authentication is disabled.
const DefaultTenant = "default"

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type tenantKey struct{}

// ContextWithTenant stores the acting tenant in the context.
func ContextWithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext returns the acting tenant, or DefaultTenant.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantKey{}).(string); ok && t != "" {
		return t
	}
	return DefaultTenant
}

// BearerAuthMiddleware validates Bearer API keys and binds the request to the
// key's tenant. If apiKeys is empty, authentication is disabled and every
// request acts as DefaultTenant.
func BearerAuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	tenants := make(map[string]string, len(apiKeys))
	for k, tenant := range apiKeys {
		if k != "" && tenant != "" {
			tenants[k] = tenant
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled: pass everything through
		if len(tenants) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exempt paths
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			tenant, ok := tenants[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			ctx := logpkg.WithFields(ContextWithTenant(r.Context(), tenant), zap.String("tenant", tenant))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
