package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/rbac"
)

// POST /exams/{examID}/grade  { "module": "listening", "answers": {...} }
// Grades without creating or touching an attempt. Correct answers are
// blanked unless the caller may see answer keys.
func GradeExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			answersReq
			Module string `json:"module"`
		}
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		var module band.Module
		if req.Module != "" {
			m, err := band.ParseModule(req.Module)
			if err != nil {
				writeError(w, r, badRequest(err.Error()))
				return
			}
			module = m
		}
		id := strings.TrimSpace(chi.URLParam(r, "examID"))
		e, err := svc.Store().GetExam(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !e.IsPublished && !rbac.Can(viewerRole(r), rbac.PermExamDrafts) {
			writeError(w, r, exam.ErrExamNotFound)
			return
		}
		sub, err := svc.GradeOnly(r.Context(), id, module, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !rbac.Can(viewerRole(r), rbac.PermExamKeys) {
			sub = sub.WithoutKeys()
		}
		writeJSON(w, http.StatusOK, sub)
	}
}
