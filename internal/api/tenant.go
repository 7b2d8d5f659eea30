package api

import (
	"net/http"
)

// TenantHeader carries the tenant identifier on every API call. There is no
// ambient tenant state anywhere in the engine; handlers read the header and
// pass the id down explicitly.
const TenantHeader = "X-Tenant-ID"

func tenantID(r *http.Request) string {
	return r.Header.Get(TenantHeader)
}

// requireTenant rejects requests without a tenant id.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenantID(r) == "" {
			respondError(w, http.StatusBadRequest, TenantHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
