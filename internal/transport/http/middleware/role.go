package middleware

import (
	"net/http"

	"github.com/go-whatsapp-otp/internal/domain"
)

// RequireRole allows callers whose role is at least as privileged as one of
// the given roles. RequireRole(domain.RoleAdmin) admits admins and
// superadmins.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "", "Authentication required")
				return
			}
			for _, role := range roles {
				if claims.Role.AtLeast(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "", "Forbidden")
		})
	}
}
