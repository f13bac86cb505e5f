package tenant

import (
	"context"

	"reqsphere.io/internal/auth"
)

// Context is the request-scoped tenancy context built once per request by the
// Resolver. It is carried on the request's context.Context and discarded with
// it; never store one beyond the request that produced it.
type Context struct {
	TenantID        string
	TenantSubdomain string
	UserID          string
	Role            auth.Role
	IsAuthenticated bool
}

type tenantContextKey struct{}

// WithContext returns a copy of ctx carrying tc.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext extracts the tenancy context, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(*Context)
	return tc, ok
}
