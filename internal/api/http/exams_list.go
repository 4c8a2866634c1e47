package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/rbac"
)

// GET /exams?q=&type=Academic|General&includeUnpublished=true&limit=&offset=
// Anonymous callers see published exams. Drafts need exam:view-unpublished.
func ListExamsHandler(store exam.Store, authSvc *authmw.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := exam.ListOpts{
			Q:      strings.TrimSpace(q.Get("q")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		}
		if t := strings.TrimSpace(q.Get("type")); t != "" {
			v, err := band.ParseVariant(t)
			if err != nil {
				writeError(w, r, badRequest(err.Error()))
				return
			}
			opts.Type = v
		}
		if q.Get("includeUnpublished") == "true" {
			opts.IncludeUnpublished = rbac.Can(bearerRole(authSvc, r), rbac.PermExamDrafts)
		}
		list, err := store.ListExams(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exams/{examID}  candidate view without answer keys; ?full=true for admins
func GetExamHandler(store exam.Store, authSvc *authmw.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "examID"))
		role := bearerRole(authSvc, r)
		var (
			e   exam.Exam
			err error
		)
		if r.URL.Query().Get("full") == "true" && rbac.Can(role, rbac.PermExamCreate) {
			e, err = store.GetExamAdmin(r.Context(), id)
		} else {
			e, err = store.GetExam(r.Context(), id)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !e.IsPublished && !rbac.Can(role, rbac.PermExamDrafts) {
			writeError(w, r, exam.ErrExamNotFound)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// POST /exams  full exam with questions; replaces an existing exam with the same id
func UploadExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e exam.Exam
		if err := decodeJSON(w, r, &e, false); err != nil {
			writeError(w, r, err)
			return
		}
		out, err := svc.PutExam(r.Context(), e)
		if err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("exam uploaded",
			zap.String("exam_id", out.ID),
			zap.String("by", authmw.SubjectFromContext(r.Context())),
		)
		writeJSON(w, http.StatusCreated, exam.Summarize(out))
	}
}

// bearerRole reads the role from an optional bearer token on public routes.
func bearerRole(authSvc *authmw.AuthService, r *http.Request) string {
	if role := rbac.RoleFromContext(r.Context()); role != "" {
		return role
	}
	h := r.Header.Get("Authorization")
	if authSvc == nil || !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	c, err := authSvc.Parse(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return ""
	}
	return c.Role
}

func viewerRole(r *http.Request) string { return rbac.RoleFromContext(r.Context()) }
