package tenant

import (
	"fmt"

	"reqsphere.io/internal/apperr"
)

// Advisory row-level tenancy helpers. They are not enforced by the database;
// every repository touching tenant-scoped tables must call them itself.

// ApplyTenantFilter appends a tenant_id predicate to query when tc carries a
// tenant, binding the id as the next positional argument. The query must end
// inside a WHERE clause. Without a tenant the query passes through unchanged.
func ApplyTenantFilter(tc *Context, query string, args []any) (string, []any) {
	if tc == nil || tc.TenantID == "" {
		return query, args
	}
	args = append(args, tc.TenantID)
	return fmt.Sprintf("%s AND tenant_id = $%d", query, len(args)), args
}

// AssertSameTenant rejects access to an entity belonging to a different
// tenant. Contexts without a tenant pass; they see only what their queries
// were filtered to.
func AssertSameTenant(tc *Context, entityTenantID string) error {
	if tc == nil || tc.TenantID == "" {
		return nil
	}
	if entityTenantID != tc.TenantID {
		return apperr.Authorization("access to this resource is not allowed")
	}
	return nil
}

// StampTenant returns tenantID unchanged when set, otherwise the context's
// tenant. New rows created during a tenant-scoped request inherit the tenant
// implicitly.
func StampTenant(tc *Context, tenantID string) string {
	if tenantID != "" {
		return tenantID
	}
	if tc == nil {
		return ""
	}
	return tc.TenantID
}
