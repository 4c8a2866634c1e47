package grading

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/chipcloud/ielts-practice/internal/band"
)

// ErrNoQuestions is returned when an exam has nothing to grade. It signals an
// upstream data problem, not a zero score.
var ErrNoQuestions = errors.New("no question data found for this exam")

// ScoreOptions selects the band table and how grading is scheduled.
type ScoreOptions struct {
	Module  band.Module
	Variant band.Variant
	Workers int // <= 1 grades sequentially
}

// ExamResult is the aggregate of a graded exam.
type ExamResult struct {
	Results   []Result `json:"questionResults"`
	RawScore  float64  `json:"rawScore"`
	MaxScore  float64  `json:"maxScore"`
	BandScore float64  `json:"bandScore"`
	BandLabel string   `json:"bandLabel"`
	Accuracy  int      `json:"accuracy"`
	Correct   int      `json:"correctCount"`
}

// GradeExam grades every question with the default grader.
func GradeExam(questions []Question, answers Answers, opts ScoreOptions) (ExamResult, error) {
	return Aggregate(std, questions, answers, opts)
}

// Aggregate grades questions with g and folds the results into an
// ExamResult. Results come back ordered by question number; questions that
// share a number keep their input order.
func Aggregate(g Grader, questions []Question, answers Answers, opts ScoreOptions) (ExamResult, error) {
	if len(questions) == 0 {
		return ExamResult{}, ErrNoQuestions
	}

	results := make([]Result, len(questions))
	if opts.Workers > 1 && len(questions) > 1 {
		gradeParallel(g, questions, answers, results, opts.Workers)
	} else {
		for i, q := range questions {
			results[i] = g.Grade(q, answers[q.ID])
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].QuestionNumber < results[j].QuestionNumber
	})

	out := ExamResult{Results: results}
	for _, r := range results {
		out.RawScore += r.PointsEarned
		out.MaxScore += r.MaxPoints
		if r.IsCorrect {
			out.Correct++
		}
	}
	if out.MaxScore > 0 {
		out.Accuracy = int(math.Floor(out.RawScore/out.MaxScore*100 + 0.5))
	}
	out.BandScore = band.Convert(out.RawScore, out.MaxScore, opts.Module, opts.Variant)
	out.BandLabel = band.Label(out.BandScore)
	return out, nil
}

func gradeParallel(g Grader, questions []Question, answers Answers, results []Result, workers int) {
	if workers > len(questions) {
		workers = len(questions)
	}
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				results[i] = g.Grade(questions[i], answers[questions[i].ID])
			}
		}()
	}
	for i := range questions {
		idx <- i
	}
	close(idx)
	wg.Wait()
}
