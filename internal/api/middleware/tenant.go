package middleware

import (
	"context"
	"net/http"
	"strings"
)

// TenantHeader carries the tenant of a request.
const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// Tenant stores the X-Tenant-ID header value in the request context.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenantID != "" {
			r = r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenantID))
		}
		next.ServeHTTP(w, r)
	})
}

// GetTenantID retrieves the tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantKey{}).(string); ok {
		return id
	}
	return ""
}
