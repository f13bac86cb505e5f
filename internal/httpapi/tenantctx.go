package httpapi

import (
	"errors"
	"net/http"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/tenant"
)

// tenantContext resolves the active tenant and attaches the tenancy context
// to the request. On public routes resolution is best effort: a request with
// no tenant signal proceeds with an anonymous context, while an explicitly
// bad signal (unknown or deleted tenant) is still rejected.
func (a *API) tenantContext(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := a.resolver.Resolve(r)
			if err != nil {
				if !required && errors.Is(err, apperr.ErrTenantRequired) {
					tc = &tenant.Context{}
				} else {
					a.writeError(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}
