// Package http holds the chi handlers of the gateway. Every response uses the
// envelope {"success":bool,"data":...,"error":"..."}.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/grading"
	"github.com/chipcloud/ielts-practice/internal/storage"
)

const maxBody = 4 << 20

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Error: msg})
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		LoggerFrom(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeMessage(w, code, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exam.ErrExamNotFound),
		errors.Is(err, exam.ErrAttemptNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, authmw.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrAttemptCompleted),
		errors.Is(err, authmw.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, grading.ErrNoQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, exam.ErrInvalidExam),
		errors.Is(err, authmw.ErrInvalidEmail),
		errors.Is(err, authmw.ErrWeakPassword),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, authmw.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	default:
		return badRequest("bad json: " + err.Error())
	}
}

func badRequest(msg string) error { return fmt.Errorf("%w: %s", errBadRequest, msg) }

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

type ctxKey struct{}

// WithLogger stores a request-scoped logger for handlers.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func LoggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
