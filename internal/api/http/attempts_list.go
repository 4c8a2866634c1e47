package http

import (
	"net/http"
	"strings"

	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/rbac"
)

// GET /attempts?examId=...&userId=...&status=...&limit=50&offset=0
// Without attempt:view-all the user filter is forced to the caller.
func ListAttemptsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := exam.AttemptListOpts{
			ExamID: strings.TrimSpace(q.Get("examId")),
			UserID: strings.TrimSpace(q.Get("userId")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		}
		switch st := exam.Status(strings.TrimSpace(q.Get("status"))); st {
		case "", exam.StatusInProgress, exam.StatusCompleted:
			opts.Status = st
		default:
			writeError(w, r, badRequest("status must be in_progress or completed"))
			return
		}
		if !rbac.Can(viewerRole(r), rbac.PermAttemptViewAll) {
			opts.UserID = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.ListAttempts(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
