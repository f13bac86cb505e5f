// Package tenant resolves the active tenant for each incoming request and
// provides the advisory row-level tenancy helpers used by the repositories.
package tenant

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/auth"
)

// Subdomains that never name a tenant.
var reservedSubdomains = map[string]bool{
	"www": true,
	"api": true,
	"app": true,
}

const tenantHeader = "X-Tenant-ID"

// Resolver builds the request-scoped tenancy Context from a precedence chain
// of signals: bearer access token, host subdomain, X-Tenant-ID header, then
// the tenant_id query parameter (development convenience).
type Resolver struct {
	tenants  auth.TenantStore
	tokens   *auth.TokenService
	cache    *Cache
	baseHost string
	logger   *slog.Logger
}

// NewResolver constructs a Resolver. baseHost is the apex the service is
// reachable under ("example.com"); hosts below it are parsed for a tenant
// subdomain. cache may be nil to disable the subdomain lookup cache.
func NewResolver(tenants auth.TenantStore, tokens *auth.TokenService, cache *Cache, baseHost string, logger *slog.Logger) *Resolver {
	return &Resolver{
		tenants:  tenants,
		tokens:   tokens,
		cache:    cache,
		baseHost: strings.ToLower(strings.TrimSpace(baseHost)),
		logger:   logger,
	}
}

// Resolve walks the signal chain and returns the tenancy context for r. When
// no signal yields a tenant it returns a TenantRequired error; callers on the
// public allow-list substitute an anonymous context instead.
func (rv *Resolver) Resolve(r *http.Request) (*Context, error) {
	ctx := r.Context()

	if raw := bearerToken(r); raw != "" {
		tc, err := rv.resolveFromToken(ctx, raw)
		if err != nil {
			return nil, err
		}
		if tc != nil {
			return tc, nil
		}
	}

	if sub := subdomainFromHost(r.Host, rv.baseHost); sub != "" {
		return rv.resolveFromSubdomain(ctx, sub)
	}

	if id := strings.TrimSpace(r.Header.Get(tenantHeader)); id != "" {
		return rv.resolveFromID(ctx, id)
	}

	if id := strings.TrimSpace(r.URL.Query().Get("tenant_id")); id != "" {
		return rv.resolveFromID(ctx, id)
	}

	return nil, apperr.TenantRequired()
}

// resolveFromToken verifies the bearer token and derives the context from its
// claims. A malformed or expired token is ignored so the next signal can be
// tried; the authentication middleware is what rejects it on protected
// routes. A valid token naming a deleted tenant is rejected outright.
func (rv *Resolver) resolveFromToken(ctx context.Context, raw string) (*Context, error) {
	claims, err := rv.tokens.Verify(ctx, raw, auth.KindAccess)
	if err != nil {
		rv.logger.DebugContext(ctx, "bearer token skipped during tenant resolution",
			slog.String("error", err.Error()))
		return nil, nil
	}

	tc := &Context{
		TenantID:        claims.TenantID,
		UserID:          claims.Subject,
		Role:            auth.Role(claims.Role),
		IsAuthenticated: true,
	}
	if claims.TenantID == "" || claims.TenantID == auth.PlaceholderTenantID {
		return tc, nil
	}

	t, err := rv.tenants.Find(ctx, claims.TenantID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Tenant")
		}
		return nil, err
	}
	if t.DeletedAt != nil {
		return nil, apperr.NotFound("Tenant")
	}
	tc.TenantSubdomain = t.Subdomain
	return tc, nil
}

func (rv *Resolver) resolveFromSubdomain(ctx context.Context, sub string) (*Context, error) {
	if rv.cache != nil {
		if t, ok := rv.cache.Get(sub); ok {
			return &Context{TenantID: t.ID, TenantSubdomain: t.Subdomain}, nil
		}
	}

	t, err := rv.tenants.FindBySubdomain(ctx, sub)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Tenant")
		}
		return nil, err
	}
	if t.DeletedAt != nil {
		return nil, apperr.NotFound("Tenant")
	}
	if rv.cache != nil {
		rv.cache.Set(sub, t)
	}
	return &Context{TenantID: t.ID, TenantSubdomain: t.Subdomain}, nil
}

func (rv *Resolver) resolveFromID(ctx context.Context, id string) (*Context, error) {
	if !wellFormedTenantID(id) {
		return nil, apperr.Validation("malformed tenant identifier")
	}
	t, err := rv.tenants.Find(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Tenant")
		}
		return nil, err
	}
	if t.DeletedAt != nil {
		return nil, apperr.NotFound("Tenant")
	}
	return &Context{TenantID: t.ID, TenantSubdomain: t.Subdomain}, nil
}

// wellFormedTenantID gates header- and query-supplied tenant ids before they
// reach the store: ASCII letters, digits, hyphen, underscore, at most 64
// bytes. Covers both UUIDs and slug-style ids.
func wellFormedTenantID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	return errors.Is(err, auth.ErrNotFound) || errors.Is(err, apperr.ErrNotFound)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// subdomainFromHost extracts the tenant subdomain from the request host,
// skipping the reserved www/api/app labels. With a configured baseHost only
// hosts directly below it qualify; without one, any host with three or more
// labels contributes its first label.
func subdomainFromHost(host, baseHost string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || host == baseHost {
		return ""
	}

	var sub string
	if baseHost != "" {
		if !strings.HasSuffix(host, "."+baseHost) {
			return ""
		}
		sub = strings.TrimSuffix(host, "."+baseHost)
	} else {
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return ""
		}
		sub = labels[0]
	}

	if sub == "" || strings.Contains(sub, ".") || reservedSubdomains[sub] {
		return ""
	}
	return sub
}
