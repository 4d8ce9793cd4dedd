package middleware

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/api/responses"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

// RequireRole lets the request through only when the caller holds one of
// allowed. Refusals are sent to audit when it is set.
func RequireRole(logg *logger.Logger, audit SecurityRecorder, allowed ...enums.MemberRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := enums.MemberRole(RoleFromContext(r.Context()))
			for _, candidate := range allowed {
				if role == candidate {
					next.ServeHTTP(w, r)
					return
				}
			}
			var userID *uuid.UUID
			if p, ok := PrincipalFromContext(r.Context()); ok {
				userID = &p.UserID
			}
			recordSecurity(r.Context(), audit, enums.SecurityAccessDenied, userID, fmt.Sprintf("%s %s as %s", r.Method, r.URL.Path, role))
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
		})
	}
}
