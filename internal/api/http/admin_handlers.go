package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/rbac"
)

// RoleSetter changes stored user roles.
type RoleSetter interface {
	SetRole(ctx context.Context, id, role string) error
}

// PATCH /admin/users/{userID}  { "role": "admin" }
func UpdateUserRoleHandler(users RoleSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role"`
		}
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		role := strings.ToLower(strings.TrimSpace(req.Role))
		if _, ok := rbac.RolePermissions[role]; !ok {
			writeError(w, r, badRequest("unknown role "+req.Role))
			return
		}
		id := chi.URLParam(r, "userID")
		if err := users.SetRole(r.Context(), id, role); err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("user role changed",
			zap.String("user_id", id),
			zap.String("role", role),
			zap.String("by", authmw.SubjectFromContext(r.Context())),
		)
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "role": role})
	}
}

// POST /admin/exams/{examID}/publish and /unpublish
func SetPublishedHandler(svc *exam.Service, published bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Store().GetExamAdmin(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		e.IsPublished = published
		out, err := svc.PutExam(r.Context(), e)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, exam.Summarize(out))
	}
}
