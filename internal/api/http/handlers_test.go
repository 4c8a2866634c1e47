package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	api "github.com/chipcloud/ielts-practice/internal/api/http"
	authmw "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/db"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/rbac"
	"github.com/chipcloud/ielts-practice/internal/storage"
	syncx "github.com/chipcloud/ielts-practice/internal/sync"
)

type fixture struct {
	srv   *httptest.Server
	auth  *authmw.AuthService
	svc   *exam.Service
	admin string
	user  string
	other string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	users := authmw.NewUserStore(conn)
	authSvc := authmw.NewAuthService("test-secret", time.Hour, users)
	events := syncx.NewEventRepo(conn, "test")
	svc := exam.NewService(exam.NewSQLStore(conn, string(db.DriverSQLite)), exam.WithEvents(events))
	blobs, err := storage.NewFSStore(t.TempDir(), "")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(api.RequestLogger(zaptest.NewLogger(t)))
	r.Post("/auth/register", api.RegisterHandler(authSvc))
	r.Post("/auth/login", api.LoginHandler(authSvc))
	r.Get("/exams", api.ListExamsHandler(svc.Store(), authSvc))
	r.Get("/exams/{examID}", api.GetExamHandler(svc.Store(), authSvc))
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))
		pr.Get("/auth/me", api.MeHandler())
		pr.With(rbac.Require(rbac.PermExamCreate)).Post("/exams", api.UploadExamHandler(svc))
		pr.With(rbac.Require(rbac.PermExamGrade)).Post("/exams/{examID}/grade", api.GradeExamHandler(svc))
		pr.With(rbac.Require(rbac.PermAttemptCreate)).Post("/attempts", api.CreateAttemptHandler(svc.Store()))
		pr.Get("/attempts", api.ListAttemptsHandler(svc.Store()))
		pr.Get("/attempts/{attemptID}", api.GetAttemptHandler(svc.Store()))
		pr.With(rbac.Require(rbac.PermAttemptSave)).Put("/attempts/{attemptID}/responses", api.SaveResponsesHandler(svc.Store()))
		pr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(svc))
		pr.Get("/exams/{examID}/overall", api.OverallBandHandler(svc))
		pr.Get("/me/stats", api.StatsHandler(svc))
		pr.With(rbac.Require(rbac.PermEventsView)).Get("/events", api.ListEventsHandler(events))
		pr.Route("/assets", func(ar chi.Router) { api.MountAssets(ar, blobs) })
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	f := &fixture{srv: srv, auth: authSvc, svc: svc}
	f.admin, err = authSvc.IssueJWT(authmw.User{ID: "admin-1", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	f.user, err = authSvc.IssueJWT(authmw.User{ID: "user-1", Role: rbac.RoleUser})
	require.NoError(t, err)
	f.other, err = authSvc.IssueJWT(authmw.User{ID: "user-2", Role: rbac.RoleUser})
	require.NoError(t, err)
	return f
}

type reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, reply) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out reply
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

const examJSON = `{
  "name": "Practice Test 3",
  "type": "General",
  "isPublished": true,
  "timeLimitMinutes": 60,
  "questions": [
    {"module": "reading", "questionStructure": {"type": "true_false_not_given", "correctAnswer": "FALSE"}},
    {"module": "reading", "questionStructure": {"type": "matching", "points": 2, "correctPairs": {"1": "C", "2": "A"}}},
    {"module": "listening", "questionStructure": {"type": "short_answer", "correctAnswer": "library", "alternativeAnswers": ["the library"]}}
  ]
}`

func (f *fixture) uploadExam(t *testing.T) exam.ExamSummary {
	t.Helper()
	code, r := f.do(t, http.MethodPost, "/exams", f.admin, json.RawMessage(examJSON))
	require.Equal(t, http.StatusCreated, code, r.Error)
	var s exam.ExamSummary
	require.NoError(t, json.Unmarshal(r.Data, &s))
	return s
}

func TestRegisterLoginMe(t *testing.T) {
	f := newFixture(t)
	code, r := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "amy@example.com", "password": "listening-9"})
	require.Equal(t, http.StatusCreated, code, r.Error)

	code, r = f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "amy@example.com", "password": "listening-9"})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, r.Success)

	code, _ = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "amy@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, r = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "AMY@example.com", "password": "listening-9"})
	require.Equal(t, http.StatusOK, code, r.Error)
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &tok))

	code, r = f.do(t, http.MethodGet, "/auth/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(r.Data), `"role":"user"`)

	code, _ = f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "bob@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUploadRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPost, "/exams", f.user, json.RawMessage(examJSON))
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = f.do(t, http.MethodPost, "/exams", "", json.RawMessage(examJSON))
	assert.Equal(t, http.StatusUnauthorized, code)
	code, r := f.do(t, http.MethodPost, "/exams", f.admin, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, r.Error, "invalid exam")
}

func TestExamViewsHideAnswers(t *testing.T) {
	f := newFixture(t)
	s := f.uploadExam(t)
	assert.Equal(t, 3, s.QuestionCount)

	code, r := f.do(t, http.MethodGet, "/exams?type=General", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []exam.ExamSummary
	require.NoError(t, json.Unmarshal(r.Data, &list))
	require.Len(t, list, 1)

	code, r = f.do(t, http.MethodGet, "/exams/"+s.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(r.Data), "correctAnswer")
	assert.NotContains(t, string(r.Data), "correctPairs")

	code, r = f.do(t, http.MethodGet, "/exams/"+s.ID+"?full=true", f.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(r.Data), "correctPairs")

	code, _ = f.do(t, http.MethodGet, "/exams?type=Sideways", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodGet, "/exams/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDraftsHiddenFromUsers(t *testing.T) {
	f := newFixture(t)
	var e map[string]any
	require.NoError(t, json.Unmarshal([]byte(examJSON), &e))
	e["isPublished"] = false
	code, r := f.do(t, http.MethodPost, "/exams", f.admin, e)
	require.Equal(t, http.StatusCreated, code)
	var s exam.ExamSummary
	require.NoError(t, json.Unmarshal(r.Data, &s))

	code, _ = f.do(t, http.MethodGet, "/exams/"+s.ID, f.user, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodPost, "/attempts", f.user, map[string]string{"examId": s.ID})
	assert.Equal(t, http.StatusNotFound, code)

	_, r = f.do(t, http.MethodGet, "/exams?includeUnpublished=true", f.user, nil)
	assert.Equal(t, "[]", string(r.Data))
	_, r = f.do(t, http.MethodGet, "/exams?includeUnpublished=true", f.admin, nil)
	assert.Contains(t, string(r.Data), s.ID)
}

func TestAttemptFlow(t *testing.T) {
	f := newFixture(t)
	s := f.uploadExam(t)

	code, r := f.do(t, http.MethodPost, "/attempts", f.user, map[string]string{"examId": s.ID, "module": "Reading"})
	require.Equal(t, http.StatusCreated, code, r.Error)
	var a exam.Attempt
	require.NoError(t, json.Unmarshal(r.Data, &a))
	assert.Equal(t, "user-1", a.UserID)
	assert.Equal(t, band.Reading, a.Module)

	code, _ = f.do(t, http.MethodGet, "/attempts/"+a.ID, f.other, nil)
	assert.Equal(t, http.StatusNotFound, code, "other users cannot see the attempt")
	code, _ = f.do(t, http.MethodGet, "/attempts/"+a.ID, f.admin, nil)
	assert.Equal(t, http.StatusOK, code)

	questions, err := f.svc.Store().QuestionSet(context.Background(), s.ID, band.Reading)
	require.NoError(t, err)
	require.Len(t, questions.Questions, 2)
	tfng, match := questions.Questions[0].ID, questions.Questions[1].ID

	code, r = f.do(t, http.MethodPut, "/attempts/"+a.ID+"/responses", f.user, map[string]any{
		"answers": map[string]any{tfng: "no"},
	})
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.do(t, http.MethodPost, "/attempts/"+a.ID+"/submit", f.user, map[string]any{
		"answers": map[string]any{match: map[string]string{"1": "C", "2": "B"}},
	})
	require.Equal(t, http.StatusOK, code, r.Error)
	var sub exam.Submission
	require.NoError(t, json.Unmarshal(r.Data, &sub))
	assert.Equal(t, 2.0, sub.RawScore)
	assert.Equal(t, 3.0, sub.MaxScore)
	assert.Equal(t, 1, sub.Correct)
	assert.Equal(t, 67, sub.Accuracy)
	assert.Equal(t, exam.StatusCompleted, sub.Status)

	code, r = f.do(t, http.MethodPost, "/attempts/"+a.ID+"/submit", f.user, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "attempt already completed", r.Error)

	code, r = f.do(t, http.MethodGet, "/attempts", f.other, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", string(r.Data))
	code, r = f.do(t, http.MethodGet, "/attempts?status=completed", f.user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(r.Data), a.ID)
	code, _ = f.do(t, http.MethodGet, "/attempts?status=paused", f.user, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, r = f.do(t, http.MethodGet, "/events", f.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(r.Data), syncx.TypeAttemptSubmitted)
	code, _ = f.do(t, http.MethodGet, "/events", f.user, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestOverallBand(t *testing.T) {
	f := newFixture(t)
	s := f.uploadExam(t)

	code, r := f.do(t, http.MethodPost, "/attempts", f.user, map[string]string{"examId": s.ID, "module": "reading"})
	require.Equal(t, http.StatusCreated, code, r.Error)
	var a exam.Attempt
	require.NoError(t, json.Unmarshal(r.Data, &a))
	questions, err := f.svc.Store().QuestionSet(context.Background(), s.ID, band.Reading)
	require.NoError(t, err)
	code, r = f.do(t, http.MethodPost, "/attempts/"+a.ID+"/submit", f.user, map[string]any{
		"answers": map[string]any{questions.Questions[1].ID: map[string]string{"1": "C", "2": "A"}},
	})
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.do(t, http.MethodGet, "/exams/"+s.ID+"/overall", f.user, nil)
	require.Equal(t, http.StatusOK, code, r.Error)
	var res exam.OverallResult
	require.NoError(t, json.Unmarshal(r.Data, &res))
	assert.Equal(t, map[band.Module]float64{band.Reading: 5.5}, res.Sections)
	assert.Equal(t, 5.5, res.Overall)
	assert.False(t, res.Complete)

	code, r = f.do(t, http.MethodGet, "/exams/"+s.ID+"/overall", f.other, nil)
	require.Equal(t, http.StatusOK, code)
	var none exam.OverallResult
	require.NoError(t, json.Unmarshal(r.Data, &none))
	assert.Empty(t, none.Sections)

	code, _ = f.do(t, http.MethodGet, "/exams/nope/overall", f.user, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, r = f.do(t, http.MethodGet, "/me/stats", f.user, nil)
	require.Equal(t, http.StatusOK, code, r.Error)
	var st exam.Stats
	require.NoError(t, json.Unmarshal(r.Data, &st))
	assert.True(t, st.HasData)
	assert.Equal(t, 5.5, st.BandScore)
	assert.Equal(t, 2, st.QuestionsSolved)
	assert.Equal(t, 67, st.Accuracy)
	assert.Equal(t, []exam.ModuleStats{{Module: band.Reading, Average: 5.5, Attempts: 1}}, st.Modules)

	code, r = f.do(t, http.MethodGet, "/me/stats", f.other, nil)
	require.Equal(t, http.StatusOK, code)
	var empty exam.Stats
	require.NoError(t, json.Unmarshal(r.Data, &empty))
	assert.False(t, empty.HasData)

	code, _ = f.do(t, http.MethodGet, "/me/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSubmitWithoutQuestionsIs422(t *testing.T) {
	f := newFixture(t)
	s := f.uploadExam(t)
	code, r := f.do(t, http.MethodPost, "/attempts", f.user, map[string]string{"examId": s.ID, "module": "writing"})
	require.Equal(t, http.StatusCreated, code)
	var a exam.Attempt
	require.NoError(t, json.Unmarshal(r.Data, &a))

	code, r = f.do(t, http.MethodPost, "/attempts/"+a.ID+"/submit", f.user, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "no question data found for this exam", r.Error)
}

func TestGradeOnly(t *testing.T) {
	f := newFixture(t)
	s := f.uploadExam(t)
	qs, err := f.svc.Store().QuestionSet(context.Background(), s.ID, band.Listening)
	require.NoError(t, err)

	code, r := f.do(t, http.MethodPost, "/exams/"+s.ID+"/grade", f.user, map[string]any{
		"module":  "listening",
		"answers": map[string]any{qs.Questions[0].ID: "The Library."},
	})
	require.Equal(t, http.StatusOK, code, r.Error)
	var sub exam.Submission
	require.NoError(t, json.Unmarshal(r.Data, &sub))
	assert.Equal(t, 1.0, sub.RawScore)
	assert.Empty(t, sub.AttemptID)
	require.Len(t, sub.Results, 1)
	assert.Empty(t, sub.Results[0].CorrectAnswer)

	// an empty submission must not reveal the keys of a published exam
	code, r = f.do(t, http.MethodPost, "/exams/"+s.ID+"/grade", f.user, map[string]any{})
	require.Equal(t, http.StatusOK, code, r.Error)
	assert.NotContains(t, string(r.Data), "library")
	assert.NotContains(t, string(r.Data), "FALSE")

	code, r = f.do(t, http.MethodPost, "/exams/"+s.ID+"/grade", f.admin, map[string]any{"module": "listening"})
	require.Equal(t, http.StatusOK, code, r.Error)
	var full exam.Submission
	require.NoError(t, json.Unmarshal(r.Data, &full))
	require.Len(t, full.Results, 1)
	assert.Equal(t, "library", full.Results[0].CorrectAnswer)

	code, _ = f.do(t, http.MethodPost, "/exams/"+s.ID+"/grade", f.user, map[string]any{"module": "maths"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAssets(t *testing.T) {
	f := newFixture(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("key", "exams/e1/part1.mp3"))
	fw, err := mw.CreateFormFile("file", "part1.mp3")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("ID3-audio"))
	require.NoError(t, mw.Close())

	upload := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/assets/", bytes.NewReader(body.Bytes()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return res
	}
	res := upload(f.user)
	res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = upload(f.admin)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/assets/exams/e1/part1.mp3", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.user)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	b, _ := io.ReadAll(res.Body)
	assert.Equal(t, "ID3-audio", string(b))
	assert.Equal(t, "audio/mpeg", res.Header.Get("Content-Type"))

	code, _ := f.do(t, http.MethodGet, "/assets/nothing/here.png", f.user, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPublishToggle(t *testing.T) {
	f := newFixture(t)
	s := f.uploadExam(t)
	r := chi.NewRouter()
	r.Use(authmw.JWTMiddleware(f.auth))
	r.With(rbac.Require(rbac.PermExamCreate)).Post("/admin/exams/{examID}/unpublish", api.SetPublishedHandler(f.svc, false))
	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/exams/"+s.ID+"/unpublish", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.admin)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	code, _ := f.do(t, http.MethodGet, "/exams/"+s.ID, f.user, nil)
	assert.Equal(t, http.StatusNotFound, code)
	full, err := f.svc.Store().GetExamAdmin(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, full.Questions, 3, "questions survive the toggle")
}
