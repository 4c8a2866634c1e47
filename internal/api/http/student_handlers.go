package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/grading"
	"github.com/chipcloud/ielts-practice/internal/rbac"
)

type answersReq struct {
	Answers grading.Answers `json:"answers"`
}

// POST /attempts  { "examId": "...", "module": "reading" }
// An empty module covers every question of the exam.
func CreateAttemptHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ExamID string `json:"examId"`
			Module string `json:"module"`
		}
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		req.ExamID = strings.TrimSpace(req.ExamID)
		if req.ExamID == "" {
			writeError(w, r, badRequest("examId required"))
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
		e, err := store.GetExam(r.Context(), req.ExamID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !e.IsPublished && !rbac.Can(viewerRole(r), rbac.PermExamDrafts) {
			writeError(w, r, exam.ErrExamNotFound)
			return
		}
		a, err := store.NewAttempt(r.Context(), e.ID, authmw.SubjectFromContext(r.Context()), module)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// PUT /attempts/{attemptID}/responses  { "answers": { "<questionId>": ... } }
func SaveResponsesHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		if _, err := ownAttempt(r.Context(), store, id, r); err != nil {
			writeError(w, r, err)
			return
		}
		var req answersReq
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := store.SaveResponses(r.Context(), id, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/submit  optional { "answers": {...} } merged before grading
func SubmitAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		if _, err := ownAttempt(r.Context(), svc.Store(), id, r); err != nil {
			writeError(w, r, err)
			return
		}
		var req answersReq
		if err := decodeJSON(w, r, &req, true); err != nil {
			writeError(w, r, err)
			return
		}
		sub, err := svc.Submit(r.Context(), id, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("attempt submitted",
			zap.String("attempt_id", id),
			zap.Float64("band_score", sub.BandScore),
		)
		writeJSON(w, http.StatusOK, sub)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := ownAttempt(r.Context(), store, chi.URLParam(r, "attemptID"), r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ownAttempt loads an attempt the caller may touch. Other users' attempts
// read as not found unless the role can view all attempts.
func ownAttempt(ctx context.Context, store exam.Store, id string, r *http.Request) (exam.Attempt, error) {
	a, err := store.GetAttempt(ctx, strings.TrimSpace(id))
	if err != nil {
		return exam.Attempt{}, err
	}
	if a.UserID != authmw.SubjectFromContext(ctx) && !rbac.Can(viewerRole(r), rbac.PermAttemptViewAll) {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	return a, nil
}

// GET /exams/{examID}/overall
// The caller's latest completed band per section and the combined band.
func OverallBandHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Overall(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /me/stats  practice totals, band trend and per-section averages
func StatsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
