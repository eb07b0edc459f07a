package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/licensor-backend/api/responses"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// RequireRole admits callers whose role is one of allowed. It must run after
// Auth; an anonymous request has no role and is rejected.
func RequireRole(logg *logger.Logger, allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !slices.Contains(allowed, role) {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role").
						WithDetails(map[string]any{"required": allowed}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
