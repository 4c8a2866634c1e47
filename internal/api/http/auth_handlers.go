package http

import (
	"net/http"

	"go.uber.org/zap"

	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        authmw.User `json:"user"`
}

// POST /auth/login  { "email": "...", "password": "..." }
func LoginHandler(a *authmw.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, r, badRequest("email and password required"))
			return
		}
		tok, u, err := a.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("login", zap.String("user_id", u.ID))
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok, TokenType: "Bearer", User: u})
	}
}

// POST /auth/register  { "email": "...", "password": "..." }
func RegisterHandler(a *authmw.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		tok, u, err := a.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("user registered", zap.String("user_id", u.ID))
		writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: tok, TokenType: "Bearer", User: u})
	}
}

// GET /auth/me
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		writeJSON(w, http.StatusOK, map[string]string{
			"id":    authmw.SubjectFromContext(ctx),
			"email": authmw.EmailFromContext(ctx),
			"role":  viewerRole(r),
		})
	}
}
