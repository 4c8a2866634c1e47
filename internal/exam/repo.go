package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/grading"
)

var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrInvalidExam      = errors.New("invalid exam")
)

type ListOpts struct {
	Q                  string
	Type               band.Variant // empty: all
	IncludeUnpublished bool
	Limit              int
	Offset             int
}

type AttemptListOpts struct {
	ExamID string
	UserID string
	Status Status
	Limit  int
	Offset int
}

type Store interface {
	PutExam(ctx context.Context, e Exam) (Exam, error)
	GetExam(ctx context.Context, id string) (Exam, error)      // candidate-safe (no answer keys)
	GetExamAdmin(ctx context.Context, id string) (Exam, error) // full exam with keys
	ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error)
	QuestionSet(ctx context.Context, examID string, module band.Module) (QuestionSet, error)

	NewAttempt(ctx context.Context, examID, userID string, module band.Module) (Attempt, error)
	SaveResponses(ctx context.Context, attemptID string, answers grading.Answers) (Attempt, error)
	CompleteAttempt(ctx context.Context, attemptID string, answers grading.Answers, score, bandScore float64) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}

// prepareExam fills IDs, numbers and defaults and validates e in place.
func prepareExam(e *Exam, now time.Time) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidExam)
	}
	v, err := band.ParseVariant(string(e.Type))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExam, err)
	}
	e.Type = v
	if e.TimeLimitMinutes < 0 {
		return fmt.Errorf("%w: negative time limit", ErrInvalidExam)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	seen := map[string]bool{}
	for i := range e.Questions {
		q := &e.Questions[i]
		m, err := band.ParseModule(string(q.Module))
		if err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidExam, i+1, err)
		}
		q.Module = m
		if !isJSONObject(q.Structure) {
			return fmt.Errorf("%w: question %d: questionStructure must be an object", ErrInvalidExam, i+1)
		}
		if len(q.Content) == 0 {
			q.Content = json.RawMessage(`{}`)
		} else if !json.Valid(q.Content) {
			return fmt.Errorf("%w: question %d: content is not valid JSON", ErrInvalidExam, i+1)
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate question id %s", ErrInvalidExam, q.ID)
		}
		seen[q.ID] = true
		q.ExamID = e.ID
		if q.Number <= 0 {
			q.Number = i + 1
		}
		gq, err := q.Grading()
		if err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidExam, i+1, err)
		}
		if q.MaxScore <= 0 {
			q.MaxScore = gq.Points
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
