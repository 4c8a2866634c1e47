package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/grading"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Exam struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Type             band.Variant `json:"type"` // Academic|General
	IsPublished      bool         `json:"isPublished"`
	TimeLimitMinutes int          `json:"timeLimitMinutes"`
	Questions        []Question   `json:"questions,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Question is a stored exam question. Content is the passage or prompt shown
// to the candidate; Structure carries the type, options and answer key.
type Question struct {
	ID        string          `json:"id"`
	ExamID    string          `json:"examId"`
	Module    band.Module     `json:"module"`
	Number    int             `json:"questionNumber"`
	Content   json.RawMessage `json:"content,omitempty"`
	Structure json.RawMessage `json:"questionStructure"`
	MaxScore  float64         `json:"maxScore"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ExamSummary struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Type             band.Variant `json:"type"`
	IsPublished      bool         `json:"isPublished"`
	TimeLimitMinutes int          `json:"timeLimitMinutes"`
	QuestionCount    int          `json:"questionCount"`
	CreatedAt        time.Time    `json:"createdAt"`
}

type Attempt struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	ExamID      string          `json:"examId"`
	Module      band.Module     `json:"module"`
	Answers     grading.Answers `json:"userAnswers"`
	Score       *float64        `json:"score"`
	BandScore   *float64        `json:"bandScore"`
	Status      Status          `json:"status"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// QuestionSet is everything needed to grade one module of an exam.
type QuestionSet struct {
	ExamID    string       `json:"examId"`
	Variant   band.Variant `json:"variant"`
	Module    band.Module  `json:"module,omitempty"` // empty: all modules
	Questions []Question   `json:"questions"`
}

// Grading decodes the structure into the grader's view. Points come from the
// structure, then MaxScore, then 1. A malformed structure still yields a
// question (worth zero credit) alongside the decode error.
func (q Question) Grading() (grading.Question, error) {
	var gq grading.Question
	var pts struct {
		Points *float64 `json:"points"`
	}
	err := json.Unmarshal(q.Structure, &gq)
	if err == nil {
		err = json.Unmarshal(q.Structure, &pts)
	}
	if err != nil {
		gq = grading.Question{}
		err = fmt.Errorf("question %s: %w", q.ID, err)
	}
	gq.ID = q.ID
	gq.Number = q.Number
	switch {
	case err == nil && pts.Points != nil:
		gq.Points = *pts.Points
	case q.MaxScore > 0:
		gq.Points = q.MaxScore
	default:
		gq.Points = 1
	}
	return gq, err
}

// StructureType reads the "type" field of a question structure.
func (q Question) StructureType() string {
	var t struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(q.Structure, &t)
	return t.Type
}

func isJSONObject(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return false
	}
	return json.Valid(b)
}
