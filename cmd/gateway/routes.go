package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	api "github.com/chipcloud/ielts-practice/internal/api/http"
	auth "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/config"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/metrics"
	"github.com/chipcloud/ielts-practice/internal/ratelimit"
	rbac "github.com/chipcloud/ielts-practice/internal/rbac"
	"github.com/chipcloud/ielts-practice/internal/storage"
)

// userDirectory is what the router needs from the users table.
type userDirectory interface {
	auth.RoleLookup
	api.RoleSetter
}

type routerDeps struct {
	cfg           config.Config
	log           *zap.Logger
	svc           *exam.Service
	auth          *auth.AuthService
	users         userDirectory
	blobs         storage.BlobStore
	events        api.EventLister
	metrics       *metrics.Metrics
	authLimiter   *ratelimit.Limiter
	submitLimiter *ratelimit.Limiter
	ready         func(context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	store := d.svc.Store()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, api.RequestLogger(d.log), middleware.Recoverer)
	r.Use(d.metrics.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (on by default offline; can be disabled online via config)
	if d.cfg.EnableLocalAuth {
		r.With(d.authLimiter.Middleware).Post("/auth/login", api.LoginHandler(d.auth))
		if d.cfg.EnableRegistration {
			r.With(d.authLimiter.Middleware).Post("/auth/register", api.RegisterHandler(d.auth))
		}
	}

	// Public catalogue; a bearer token unlocks drafts for admins
	r.Get("/exams", api.ListExamsHandler(store, d.auth))
	r.Get("/exams/{examID}", api.GetExamHandler(store, d.auth))

	// Protected API (JWT -> stored role -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.auth))
		pr.Use(auth.AttachRoleFromDB(d.users, d.cfg.Mode == config.ModeOffline))

		pr.Get("/auth/me", api.MeHandler())

		// Admin: upload exam
		pr.With(rbac.Require(rbac.PermExamCreate)).
			Post("/exams", api.UploadExamHandler(d.svc))
		pr.With(rbac.Require(rbac.PermExamGrade), d.submitLimiter.Middleware).
			Post("/exams/{examID}/grade", api.GradeExamHandler(d.svc))

		// Candidate flow
		pr.With(rbac.Require(rbac.PermAttemptCreate)).
			Post("/attempts", api.CreateAttemptHandler(store))
		pr.Get("/attempts", api.ListAttemptsHandler(store))
		pr.Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
		pr.With(rbac.Require(rbac.PermAttemptSave)).
			Put("/attempts/{attemptID}/responses", api.SaveResponsesHandler(store))
		pr.With(rbac.Require(rbac.PermAttemptSubmit), d.submitLimiter.Middleware).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(d.svc))
		pr.Get("/exams/{examID}/overall", api.OverallBandHandler(d.svc))
		pr.Get("/me/stats", api.StatsHandler(d.svc))

		pr.With(rbac.RequireAny(rbac.PermEventsView, rbac.PermAttemptViewAll)).
			Get("/events", api.ListEventsHandler(d.events))

		pr.Route("/assets", func(ar chi.Router) {
			api.MountAssets(ar, d.blobs)
		})

		mountAdminRoutes(pr, d)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.ready(ctx); err != nil {
			d.log.Warn("not ready", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", d.metrics.Handler())
	return r
}

// mountAdminRoutes wires account and publishing controls under /admin.
func mountAdminRoutes(pr chi.Router, d routerDeps) {
	pr.Route("/admin", func(r chi.Router) {
		r.With(rbac.Require(rbac.PermUsersManage)).Patch("/users/{userID}", api.UpdateUserRoleHandler(d.users))
		r.With(rbac.Require(rbac.PermExamCreate)).Post("/exams/{examID}/publish", api.SetPublishedHandler(d.svc, true))
		r.With(rbac.Require(rbac.PermExamCreate)).Post("/exams/{examID}/unpublish", api.SetPublishedHandler(d.svc, false))
	})
}
