package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/chipcloud/ielts-practice/internal/rbac"
)

// RoleLookup returns the current role of a user id.
type RoleLookup interface {
	Role(ctx context.Context, id string) (string, error)
}

// AttachRoleFromDB replaces the token's role claim with the role stored for
// the subject, so a demoted admin loses access before their token expires.
// Deleted users are rejected. With allowClaimFallback a lookup failure keeps
// the claim instead of denying.
func AttachRoleFromDB(users RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role, err := users.Role(ctx, SubjectFromContext(ctx))
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, ErrUserNotFound):
				writeError(w, http.StatusUnauthorized, "unknown user")
			case allowClaimFallback && rbac.RoleFromContext(ctx) != "":
				next.ServeHTTP(w, r)
			default:
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}
