package grading

import (
	"math"
	"strings"
)

// Strategy grades a single question of one type. Strategies only run for
// non-empty answers.
type Strategy interface {
	Grade(q Question, a Answer) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Question, a Answer) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
	fallback   Strategy
}

func (g *defaultGrader) Grade(q Question, a Answer) Result {
	q.Points = sanitizePoints(q.Points)
	if a.IsEmpty() {
		return Result{
			QuestionID:     q.ID,
			QuestionNumber: q.Number,
			CorrectAnswer:  correctDisplay(q),
			MaxPoints:      q.Points,
			Total:          1,
		}
	}
	s, ok := g.strategies[q.Type]
	if !ok {
		s = g.fallback
	}
	res := s.Grade(q, a)
	res.QuestionID = q.ID
	res.QuestionNumber = q.Number
	res.MaxPoints = q.Points
	res.PointsEarned = clamp(res.PointsEarned, 0, q.Points)
	return res
}

// Engine options

type Option func(*config)

type config struct {
	StrictTFNG            bool // separate True/False and Yes/No synonym tables
	PositionalGapFallback bool // legacy gap fill: align keyed values by insertion order
}

func WithStrictTFNG(b bool) Option            { return func(c *config) { c.StrictTFNG = b } }
func WithPositionalGapFallback(b bool) Option { return func(c *config) { c.PositionalGapFallback = b } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		PositionalGapFallback: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeGapFill:        gapFillStrategy{positional: cfg.PositionalGapFallback},
			TypeMatching:       matchingStrategy{},
			TypeTrueFalseNG:    tfngStrategy{truthy: pick(cfg.StrictTFNG, tfTrue, trueWords), falsy: pick(cfg.StrictTFNG, tfFalse, falseWords)},
			TypeYesNoNG:        tfngStrategy{truthy: pick(cfg.StrictTFNG, ynTrue, trueWords), falsy: pick(cfg.StrictTFNG, ynFalse, falseWords)},
			TypeBoolean:        tfngStrategy{truthy: trueWords, falsy: falseWords},
			TypeMultipleChoice: choiceStrategy{},
		},
		fallback: textStrategy{},
	}
}

var std = NewDefaultGrader()

// GradeQuestion grades one answer with the default grader.
func GradeQuestion(q Question, a Answer) Result { return std.Grade(q, a) }

// --- Strategies ---

type gapFillStrategy struct{ positional bool }

func (s gapFillStrategy) Grade(q Question, a Answer) Result {
	res := Result{UserAnswer: a.Display(), CorrectAnswer: correctDisplay(q)}

	if len(q.Gaps) > 0 {
		res.Total = len(q.Gaps)
		for i, gap := range q.Gaps {
			given, _ := a.Lookup(GapKey(i))
			if matchesAny(Normalize(given), Normalize, gap.Answer, gap.Alternatives...) {
				res.Hits++
			}
		}
		return partial(res, q.Points)
	}

	if q.CorrectAnswer.IsList() {
		expected := q.CorrectAnswer.List()
		res.Total = len(expected)
		// gap_<i> keys win; insertion order is only trusted for legacy
		// answers that carry none of them
		var given []string
		if s.positional && !hasGapKeys(a) {
			given = a.Values()
		} else {
			given = make([]string, len(expected))
			for i := range expected {
				given[i], _ = a.Lookup(GapKey(i))
			}
		}
		for i, want := range expected {
			var got string
			if i < len(given) {
				got = given[i]
			}
			if matchesAny(Normalize(got), Normalize, want) {
				res.Hits++
			}
		}
		return partial(res, q.Points)
	}

	res.Total = 1
	return res
}

type matchingStrategy struct{}

func (matchingStrategy) Grade(q Question, a Answer) Result {
	res := Result{UserAnswer: a.Display(), CorrectAnswer: correctDisplay(q)}
	res.Total = len(q.CorrectPairs)
	for _, p := range q.CorrectPairs {
		got, _ := a.Lookup(p.Key)
		if matchesAny(Normalize(got), Normalize, p.Value) {
			res.Hits++
		}
	}
	if res.Total == 0 {
		res.Total = 1
	}
	return partial(res, q.Points)
}

type tfngStrategy struct{ truthy, falsy []string }

func (s tfngStrategy) Grade(q Question, a Answer) Result {
	expand := func(v string) string { return expandWith(v, s.truthy, s.falsy) }
	return whole(q, a, matchesAny(expand(a.scalar()), expand, q.CorrectAnswer.Display()))
}

type choiceStrategy struct{}

func (choiceStrategy) Grade(q Question, a Answer) Result {
	return whole(q, a, matchesAny(Normalize(a.scalar()), Normalize, q.CorrectAnswer.Display()))
}

// textStrategy covers short answers, completions and any unknown type.
type textStrategy struct{}

func (textStrategy) Grade(q Question, a Answer) Result {
	process := Normalize
	if q.CaseSensitive {
		process = trimSpace
	}
	return whole(q, a, matchesAny(process(a.scalar()), process, q.CorrectAnswer.Display(), q.AlternativeAnswers...))
}

// helpers

func hasGapKeys(a Answer) bool {
	for _, e := range a.keyed {
		if strings.HasPrefix(e.Key, "gap_") {
			return true
		}
	}
	return false
}

// scalar is the string form of an answer for single-value strategies.
// List and keyed answers compare by their display string.
func (a Answer) scalar() string {
	if a.kind == KindText {
		return a.text
	}
	return a.Display()
}

// matchesAny reports whether given equals any processed candidate. Candidates
// that process to "" never match: a blank key is missing data, not an answer.
func matchesAny(given string, process func(string) string, first string, rest ...string) bool {
	if given == "" {
		return false
	}
	if c := process(first); c != "" && c == given {
		return true
	}
	for _, r := range rest {
		if c := process(r); c != "" && c == given {
			return true
		}
	}
	return false
}

func whole(q Question, a Answer, ok bool) Result {
	res := Result{
		UserAnswer:    a.scalar(),
		CorrectAnswer: correctDisplay(q),
		IsCorrect:     ok,
		Total:         1,
	}
	if ok {
		res.Hits = 1
		res.PointsEarned = q.Points
	}
	return res
}

func partial(res Result, points float64) Result {
	total := res.Total
	if total < 1 {
		total = 1
	}
	res.PointsEarned = RoundPoints(float64(res.Hits) / float64(total) * points)
	res.IsCorrect = res.Hits == res.Total
	return res
}

func correctDisplay(q Question) string {
	switch q.Type {
	case TypeGapFill:
		if len(q.Gaps) > 0 {
			out := make([]string, len(q.Gaps))
			for i, g := range q.Gaps {
				out[i] = g.Answer
			}
			return joinDisplay(out)
		}
	case TypeMatching:
		out := make([]string, len(q.CorrectPairs))
		for i, p := range q.CorrectPairs {
			out[i] = p.Key + "→" + p.Value
		}
		return joinDisplay(out)
	}
	return q.CorrectAnswer.Display()
}

// RoundPoints rounds half-up to two decimals so partial credit does not
// drift when summed over many questions.
func RoundPoints(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Floor(v*100+0.5) / 100
}

func sanitizePoints(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pick(strict bool, narrow, wide []string) []string {
	if strict {
		return narrow
	}
	return wide
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

func joinDisplay(parts []string) string { return strings.Join(parts, ", ") }
