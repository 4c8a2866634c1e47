package exam

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/grading"
	"github.com/chipcloud/ielts-practice/internal/metrics"
	syncx "github.com/chipcloud/ielts-practice/internal/sync"
)

// QuestionCache keeps question sets keyed by exam and module.
type QuestionCache interface {
	Get(ctx context.Context, examID string, module band.Module) (QuestionSet, bool)
	Set(ctx context.Context, qs QuestionSet)
	Invalidate(ctx context.Context, examID string)
}

// EventAppender records domain events.
type EventAppender interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

// Submission is a graded exam, with the attempt it completed if any.
type Submission struct {
	AttemptID string `json:"id,omitempty"`
	Status    Status `json:"status"`
	grading.ExamResult
	CompletedAt time.Time `json:"completedAt"`
}

// WithoutKeys returns a copy with every correct-answer display blanked.
func (s Submission) WithoutKeys() Submission {
	results := make([]grading.Result, len(s.Results))
	for i, r := range s.Results {
		r.CorrectAnswer = ""
		results[i] = r
	}
	s.Results = results
	return s
}

type Service struct {
	store   Store
	grader  grading.Grader
	cache   QuestionCache
	events  EventAppender
	metrics *metrics.Metrics
	log     *zap.Logger
	tracer  trace.Tracer
	workers int
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithGrader(g grading.Grader) ServiceOption    { return func(s *Service) { s.grader = g } }
func WithCache(c QuestionCache) ServiceOption      { return func(s *Service) { s.cache = c } }
func WithEvents(e EventAppender) ServiceOption     { return func(s *Service) { s.events = e } }
func WithMetrics(m *metrics.Metrics) ServiceOption { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) ServiceOption       { return func(s *Service) { s.log = l } }
func WithWorkers(n int) ServiceOption              { return func(s *Service) { s.workers = n } }
func withClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		grader: grading.NewDefaultGrader(),
		log:    zap.NewNop(),
		tracer: otel.Tracer("github.com/chipcloud/ielts-practice/internal/exam"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Store() Store { return s.store }

// PutExam stores e and drops any cached question sets for it.
func (s *Service) PutExam(ctx context.Context, e Exam) (Exam, error) {
	out, err := s.store.PutExam(ctx, e)
	if err != nil {
		return Exam{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, out.ID)
	}
	if out.IsPublished && s.events != nil {
		payload := map[string]any{"examId": out.ID, "name": out.Name, "questions": len(out.Questions)}
		if err := s.events.Append(ctx, syncx.TypeExamPublished, out.ID, payload); err != nil {
			s.log.Warn("append exam event", zap.String("exam_id", out.ID), zap.Error(err))
		}
	}
	s.log.Info("exam stored", zap.String("exam_id", out.ID), zap.Int("questions", len(out.Questions)))
	return out, nil
}

// Submit merges answers into the attempt, grades it against its exam and
// completes it. A completed attempt cannot be submitted again.
func (s *Service) Submit(ctx context.Context, attemptID string, answers grading.Answers) (Submission, error) {
	ctx, span := s.tracer.Start(ctx, "exam.Submit", trace.WithAttributes(attribute.String("attempt.id", attemptID)))
	defer span.End()

	sub, err := s.submit(ctx, attemptID, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveSubmission(outcome(err))
		return Submission{}, err
	}
	s.metrics.ObserveSubmission("graded")
	return sub, nil
}

func (s *Service) submit(ctx context.Context, attemptID string, answers grading.Answers) (Submission, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Submission{}, err
	}
	if a.Status == StatusCompleted {
		return Submission{}, ErrAttemptCompleted
	}
	merged := MergeAnswers(a.Answers, answers)

	set, err := s.questionSet(ctx, a.ExamID, a.Module)
	if err != nil {
		return Submission{}, err
	}
	res, err := s.grade(ctx, set, merged)
	if err != nil {
		return Submission{}, err
	}

	done, err := s.store.CompleteAttempt(ctx, a.ID, merged, res.RawScore, res.BandScore)
	if err != nil {
		return Submission{}, err
	}
	completedAt := s.now().UTC()
	if done.CompletedAt != nil {
		completedAt = *done.CompletedAt
	}

	if s.events != nil {
		payload := map[string]any{
			"attemptId": a.ID,
			"examId":    a.ExamID,
			"userId":    a.UserID,
			"module":    a.Module,
			"rawScore":  res.RawScore,
			"maxScore":  res.MaxScore,
			"bandScore": res.BandScore,
		}
		// the attempt is already completed; a lost event must not fail the submit
		if err := s.events.Append(ctx, syncx.TypeAttemptSubmitted, a.ID, payload); err != nil {
			s.log.Warn("append attempt event", zap.String("attempt_id", a.ID), zap.Error(err))
		}
	}
	s.log.Info("attempt graded",
		zap.String("attempt_id", a.ID),
		zap.String("exam_id", a.ExamID),
		zap.String("module", string(a.Module)),
		zap.Float64("raw_score", res.RawScore),
		zap.Float64("max_score", res.MaxScore),
		zap.Float64("band_score", res.BandScore),
	)
	return Submission{AttemptID: a.ID, Status: StatusCompleted, ExamResult: res, CompletedAt: completedAt}, nil
}

// GradeOnly grades answers against an exam without touching any attempt.
// An empty module grades every question of the exam.
func (s *Service) GradeOnly(ctx context.Context, examID string, module band.Module, answers grading.Answers) (Submission, error) {
	ctx, span := s.tracer.Start(ctx, "exam.GradeOnly", trace.WithAttributes(attribute.String("exam.id", examID)))
	defer span.End()

	set, err := s.questionSet(ctx, examID, module)
	if err != nil {
		span.RecordError(err)
		return Submission{}, err
	}
	res, err := s.grade(ctx, set, answers)
	if err != nil {
		span.RecordError(err)
		return Submission{}, err
	}
	return Submission{Status: StatusCompleted, ExamResult: res, CompletedAt: s.now().UTC()}, nil
}

func (s *Service) grade(ctx context.Context, set QuestionSet, answers grading.Answers) (grading.ExamResult, error) {
	questions := make([]grading.Question, 0, len(set.Questions))
	types := make(map[string]string, len(set.Questions))
	for _, q := range set.Questions {
		gq, err := q.Grading()
		if err != nil {
			s.log.Warn("malformed question structure", zap.String("exam_id", set.ExamID), zap.Error(err))
		}
		questions = append(questions, gq)
		types[gq.ID] = gq.Type
	}
	module := set.Module
	if module == "" {
		module = dominantModule(set.Questions)
	}
	res, err := grading.Aggregate(s.grader, questions, answers, grading.ScoreOptions{
		Module:  module,
		Variant: set.Variant,
		Workers: s.workers,
	})
	if err != nil {
		if errors.Is(err, grading.ErrNoQuestions) {
			s.log.Warn("no questions to grade", zap.String("exam_id", set.ExamID), zap.String("module", string(set.Module)))
		}
		return grading.ExamResult{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Float64("score.raw", res.RawScore),
		attribute.Float64("score.band", res.BandScore),
	)
	if s.metrics != nil {
		for _, r := range res.Results {
			s.metrics.ObserveGrade(types[r.QuestionID], r.IsCorrect)
		}
		s.metrics.ObserveBand(string(module), string(set.Variant), res.BandScore)
	}
	return res, nil
}

func (s *Service) questionSet(ctx context.Context, examID string, module band.Module) (QuestionSet, error) {
	if s.cache != nil {
		if qs, ok := s.cache.Get(ctx, examID, module); ok {
			return qs, nil
		}
	}
	qs, err := s.store.QuestionSet(ctx, examID, module)
	if err != nil {
		return QuestionSet{}, err
	}
	if s.cache != nil && len(qs.Questions) > 0 {
		s.cache.Set(ctx, qs)
	}
	return qs, nil
}

// dominantModule picks the band table for a mixed question set: listening
// when it outnumbers reading, reading otherwise.
func dominantModule(qs []Question) band.Module {
	counts := map[band.Module]int{}
	for _, q := range qs {
		counts[q.Module]++
	}
	best, n := band.Reading, counts[band.Reading]
	if counts[band.Listening] > n {
		best = band.Listening
	}
	return best
}

func outcome(err error) string {
	switch {
	case errors.Is(err, grading.ErrNoQuestions):
		return "no_questions"
	case errors.Is(err, ErrAttemptCompleted):
		return "already_completed"
	case errors.Is(err, ErrAttemptNotFound), errors.Is(err, ErrExamNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// OverallResult is a candidate's standing on one exam across sections.
type OverallResult struct {
	ExamID   string                  `json:"examId"`
	Sections map[band.Module]float64 `json:"sections"`
	Overall  float64                 `json:"overall"`
	Complete bool                    `json:"complete"` // all four sections present
}

// Overall combines the latest completed single-section attempt per module
// into an overall band.
func (s *Service) Overall(ctx context.Context, userID, examID string) (OverallResult, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return OverallResult{}, err
	}
	attempts, err := s.store.ListAttempts(ctx, AttemptListOpts{
		ExamID: examID,
		UserID: userID,
		Status: StatusCompleted,
		Limit:  200,
	})
	if err != nil {
		return OverallResult{}, err
	}
	out := OverallResult{ExamID: examID, Sections: map[band.Module]float64{}}
	latest := map[band.Module]time.Time{}
	for _, a := range attempts {
		if a.Module == "" || a.BandScore == nil || a.CompletedAt == nil {
			continue
		}
		if t, ok := latest[a.Module]; ok && !a.CompletedAt.After(t) {
			continue
		}
		latest[a.Module] = *a.CompletedAt
		out.Sections[a.Module] = *a.BandScore
	}
	bands := make([]float64, 0, len(out.Sections))
	for _, m := range band.Modules {
		if b, ok := out.Sections[m]; ok {
			bands = append(bands, b)
		}
	}
	out.Overall = band.Overall(bands...)
	out.Complete = len(bands) == len(band.Modules)
	return out, nil
}
