package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	auth "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/config"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/metrics"
	"github.com/chipcloud/ielts-practice/internal/ratelimit"
	"github.com/chipcloud/ielts-practice/internal/rbac"
	"github.com/chipcloud/ielts-practice/internal/storage"
	syncx "github.com/chipcloud/ielts-practice/internal/sync"
)

type stubUsers map[string]string

func (s stubUsers) Role(_ context.Context, id string) (string, error) {
	if r, ok := s[id]; ok {
		return r, nil
	}
	return "", auth.ErrUserNotFound
}

func (s stubUsers) SetRole(_ context.Context, id, role string) error {
	if _, ok := s[id]; !ok {
		return auth.ErrUserNotFound
	}
	s[id] = role
	return nil
}

type noEvents struct{}

func (noEvents) Since(context.Context, int64, int) ([]syncx.Event, error) { return nil, nil }

func testRouter(t *testing.T, cfg config.Config, ready func(context.Context) error) (http.Handler, *auth.AuthService, stubUsers) {
	t.Helper()
	blobs, err := storage.NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	authSvc := auth.NewAuthService("secret", time.Hour, nil)
	users := stubUsers{"u1": rbac.RoleUser, "boss": rbac.RoleAdmin}
	m := metrics.New()
	h := newRouter(routerDeps{
		cfg:           cfg,
		log:           zaptest.NewLogger(t),
		svc:           exam.NewService(exam.NewInMemoryStore(), exam.WithMetrics(m)),
		auth:          authSvc,
		users:         users,
		blobs:         blobs,
		events:        noEvents{},
		metrics:       m,
		authLimiter:   ratelimit.New(60, 2, nil),
		submitLimiter: ratelimit.New(60, 2, nil),
		ready:         ready,
	})
	return h, authSvc, users
}

func get(h http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "203.0.113.9:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	h, _, _ := testRouter(t, config.Config{}, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, get(h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, http.MethodGet, "/readyz", "", nil).Code)

	h, _, _ = testRouter(t, config.Config{}, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, get(h, http.MethodGet, "/readyz", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := testRouter(t, config.Config{}, func(context.Context) error { return nil })
	get(h, http.MethodGet, "/exams", "", nil)
	rec := get(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{endpoint="/exams",method="GET",status="200"} 1`)
}

func TestLocalAuthToggle(t *testing.T) {
	h, _, _ := testRouter(t, config.Config{}, nil)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodPost, "/auth/login", "", strings.NewReader(`{}`)).Code)

	h, _, _ = testRouter(t, config.Config{EnableLocalAuth: true}, nil)
	assert.Equal(t, http.StatusBadRequest, get(h, http.MethodPost, "/auth/login", "", strings.NewReader(`{}`)).Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodPost, "/auth/register", "", strings.NewReader(`{}`)).Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	h, _, _ := testRouter(t, config.Config{EnableLocalAuth: true}, nil)
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, get(h, http.MethodPost, "/auth/login", "", strings.NewReader(`not json`)).Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestStoredRoleOverridesClaim(t *testing.T) {
	h, authSvc, users := testRouter(t, config.Config{}, nil)
	tok, err := authSvc.IssueJWT(auth.User{ID: "u1", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(h, http.MethodGet, "/events", tok, nil).Code)

	users["u1"] = rbac.RoleAdmin
	assert.Equal(t, http.StatusOK, get(h, http.MethodGet, "/events", tok, nil).Code)

	ghost, err := authSvc.IssueJWT(auth.User{ID: "ghost", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(h, http.MethodGet, "/events", ghost, nil).Code)
}

func TestAdminRoleChange(t *testing.T) {
	h, authSvc, users := testRouter(t, config.Config{}, nil)
	boss, err := authSvc.IssueJWT(auth.User{ID: "boss", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	user, err := authSvc.IssueJWT(auth.User{ID: "u1", Role: rbac.RoleUser})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(h, http.MethodPatch, "/admin/users/u1", user, strings.NewReader(`{"role":"admin"}`)).Code)
	assert.Equal(t, http.StatusBadRequest, get(h, http.MethodPatch, "/admin/users/u1", boss, strings.NewReader(`{"role":"wizard"}`)).Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodPatch, "/admin/users/nobody", boss, strings.NewReader(`{"role":"admin"}`)).Code)
	assert.Equal(t, http.StatusOK, get(h, http.MethodPatch, "/admin/users/u1", boss, strings.NewReader(`{"role":"admin"}`)).Code)
	assert.Equal(t, rbac.RoleAdmin, users["u1"])
}

func TestSubjectOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:9"
	assert.Equal(t, "198.51.100.1", subjectOrIP(req))
	req = req.WithContext(auth.WithSubject(req.Context(), "u1"))
	assert.Equal(t, "sub:u1", subjectOrIP(req))
}
