package exam

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chipcloud/ielts-practice/internal/band"
)

const (
	trendLen  = 7
	recentLen = 10
	statsPage = 200
)

// Stats summarises a candidate's practice history.
type Stats struct {
	BandScore       float64       `json:"bandScore"` // latest completed attempt
	PracticeMinutes float64       `json:"practiceMinutes"`
	PracticeTime    string        `json:"practiceTime"`
	QuestionsSolved int           `json:"questionsSolved"`
	Accuracy        int           `json:"accuracy"`
	ScoreTrend      []TrendPoint  `json:"scoreTrend"` // oldest first
	Modules         []ModuleStats `json:"modulePerformance"`
	Recent          []Attempt     `json:"recentActivity"`
	HasData         bool          `json:"hasData"`
}

type TrendPoint struct {
	AttemptID   string     `json:"attemptId"`
	CompletedAt *time.Time `json:"completedAt"`
	BandScore   float64    `json:"bandScore"`
}

type ModuleStats struct {
	Module   band.Module `json:"module"`
	Average  float64     `json:"average"` // one decimal
	Attempts int         `json:"attempts"`
}

type setTotals struct {
	questions int
	max       float64
}

// Stats aggregates every attempt of userID. Question counts and maximum
// scores come from the question set each attempt was graded against.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	var all []Attempt
	for offset := 0; ; offset += statsPage {
		page, err := s.store.ListAttempts(ctx, AttemptListOpts{UserID: userID, Limit: statsPage, Offset: offset})
		if err != nil {
			return Stats{}, err
		}
		all = append(all, page...)
		if len(page) < statsPage {
			break
		}
	}

	out := Stats{
		ScoreTrend: []TrendPoint{},
		Modules:    []ModuleStats{},
		Recent:     append([]Attempt{}, all[:min(recentLen, len(all))]...),
		HasData:    len(all) > 0,
	}

	totals := map[string]setTotals{}
	sums := map[band.Module]float64{}
	counts := map[band.Module]int{}
	var score, maxScore float64
	var completed []Attempt
	for _, a := range all {
		if a.Status != StatusCompleted {
			continue
		}
		completed = append(completed, a)

		key := a.ExamID + "/" + string(a.Module)
		t, ok := totals[key]
		if !ok {
			var err error
			if t, err = s.setTotals(ctx, a.ExamID, a.Module); err != nil {
				return Stats{}, err
			}
			totals[key] = t
		}
		out.QuestionsSolved += t.questions
		maxScore += t.max
		if a.Score != nil {
			score += *a.Score
		}
		if a.CompletedAt != nil {
			out.PracticeMinutes += a.CompletedAt.Sub(a.StartedAt).Minutes()
		}
		if a.BandScore != nil && a.Module != "" {
			sums[a.Module] += *a.BandScore
			counts[a.Module]++
		}
	}

	if maxScore > 0 {
		out.Accuracy = int(math.Floor(score/maxScore*100 + 0.5))
	}
	out.PracticeTime = formatMinutes(out.PracticeMinutes)
	if len(completed) > 0 && completed[0].BandScore != nil {
		out.BandScore = *completed[0].BandScore
	}
	for i := min(trendLen, len(completed)) - 1; i >= 0; i-- {
		a := completed[i]
		p := TrendPoint{AttemptID: a.ID, CompletedAt: a.CompletedAt}
		if a.BandScore != nil {
			p.BandScore = *a.BandScore
		}
		out.ScoreTrend = append(out.ScoreTrend, p)
	}
	for _, m := range band.Modules {
		if n := counts[m]; n > 0 {
			out.Modules = append(out.Modules, ModuleStats{
				Module:   m,
				Average:  math.Floor(sums[m]/float64(n)*10+0.5) / 10,
				Attempts: n,
			})
		}
	}
	return out, nil
}

func (s *Service) setTotals(ctx context.Context, examID string, module band.Module) (setTotals, error) {
	set, err := s.questionSet(ctx, examID, module)
	if errors.Is(err, ErrExamNotFound) {
		return setTotals{}, nil
	}
	if err != nil {
		return setTotals{}, err
	}
	t := setTotals{questions: len(set.Questions)}
	for _, q := range set.Questions {
		gq, err := q.Grading()
		if err != nil {
			s.log.Warn("malformed question structure", zap.String("exam_id", examID), zap.Error(err))
		}
		t.max += gq.Points
	}
	return t, nil
}

// formatMinutes renders a duration as "1h 5m" or "42m".
func formatMinutes(minutes float64) string {
	h := math.Floor(minutes / 60)
	m := math.Floor(math.Mod(minutes, 60) + 0.5)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", int(h), int(m))
	}
	return fmt.Sprintf("%dm", int(m))
}
