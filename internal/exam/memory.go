package exam

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/grading"
)

type memoryStore struct {
	mu       sync.RWMutex
	exams    map[string]Exam
	attempts map[string]Attempt
	now      func() time.Time
}

// NewInMemoryStore is a Store for tests and local experiments.
func NewInMemoryStore() Store {
	return &memoryStore{
		exams:    map[string]Exam{},
		attempts: map[string]Attempt{},
		now:      time.Now,
	}
}

func (m *memoryStore) PutExam(_ context.Context, e Exam) (Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.exams[e.ID]; ok && e.ID != "" {
		e.CreatedAt = old.CreatedAt
	}
	if err := prepareExam(&e, m.now().UTC()); err != nil {
		return Exam{}, err
	}
	e.Questions = append([]Question(nil), e.Questions...)
	m.exams[e.ID] = e
	return e, nil
}

func (m *memoryStore) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := m.GetExamAdmin(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	return e.Stripped(), nil
}

func (m *memoryStore) GetExamAdmin(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	e.Questions = sortedQuestions(e.Questions)
	return e, nil
}

func (m *memoryStore) ListExams(_ context.Context, opts ListOpts) ([]ExamSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := []ExamSummary{}
	for _, e := range m.exams {
		if !opts.IncludeUnpublished && !e.IsPublished {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Name), q) {
			continue
		}
		out = append(out, Summarize(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	limit, offset := clampPage(opts.Limit, opts.Offset)
	if offset >= len(out) {
		return []ExamSummary{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) QuestionSet(_ context.Context, examID string, module band.Module) (QuestionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[examID]
	if !ok {
		return QuestionSet{}, ErrExamNotFound
	}
	qs := QuestionSet{ExamID: examID, Variant: e.Type, Module: module}
	for _, q := range sortedQuestions(e.Questions) {
		if module == "" || q.Module == module {
			qs.Questions = append(qs.Questions, q)
		}
	}
	return qs, nil
}

func (m *memoryStore) NewAttempt(_ context.Context, examID, userID string, module band.Module) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[examID]; !ok {
		return Attempt{}, ErrExamNotFound
	}
	now := m.now().UTC()
	a := Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		UserID:    userID,
		Module:    module,
		Answers:   grading.Answers{},
		Status:    StatusInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.attempts[a.ID] = a
	return copyAttempt(a), nil
}

func (m *memoryStore) SaveResponses(_ context.Context, attemptID string, answers grading.Answers) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status == StatusCompleted {
		return Attempt{}, ErrAttemptCompleted
	}
	a.Answers = MergeAnswers(a.Answers, answers)
	a.UpdatedAt = m.now().UTC()
	m.attempts[attemptID] = a
	return copyAttempt(a), nil
}

func (m *memoryStore) CompleteAttempt(_ context.Context, attemptID string, answers grading.Answers, score, bandScore float64) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status == StatusCompleted {
		return Attempt{}, ErrAttemptCompleted
	}
	now := m.now().UTC()
	a.Answers = MergeAnswers(nil, answers)
	a.Score = &score
	a.BandScore = &bandScore
	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.UpdatedAt = now
	m.attempts[attemptID] = a
	return copyAttempt(a), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return copyAttempt(a), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.ExamID != "" && a.ExamID != opts.ExamID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, copyAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	limit, offset := clampPage(opts.Limit, opts.Offset)
	if offset >= len(out) {
		return []Attempt{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MergeAnswers overlays next onto prev per question. Keyed answers merge by
// key so a client can save one gap at a time.
func MergeAnswers(prev, next grading.Answers) grading.Answers {
	out := make(grading.Answers, len(prev)+len(next))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range next {
		if old, ok := out[k]; ok {
			out[k] = old.Merge(v)
			continue
		}
		out[k] = v
	}
	return out
}

func copyAttempt(a Attempt) Attempt {
	a.Answers = MergeAnswers(nil, a.Answers)
	return a
}

func sortedQuestions(in []Question) []Question {
	out := append([]Question(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Summarize is the list view of e.
func Summarize(e Exam) ExamSummary {
	return ExamSummary{
		ID:               e.ID,
		Name:             e.Name,
		Type:             e.Type,
		IsPublished:      e.IsPublished,
		TimeLimitMinutes: e.TimeLimitMinutes,
		QuestionCount:    len(e.Questions),
		CreatedAt:        e.CreatedAt,
	}
}
