package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Question types known to the grader. Anything else is graded as free text.
const (
	TypeGapFill          = "gap_fill"
	TypeMatching         = "matching"
	TypeTrueFalseNG      = "true_false_not_given"
	TypeYesNoNG          = "yes_no_not_given"
	TypeBoolean          = "boolean"
	TypeMultipleChoice   = "multiple_choice"
	TypeShortAnswer      = "short_answer"
	TypeSentenceComplete = "sentence_completion"
)

// Question is the grading view of one exam question. Field names follow the
// stored question_structure JSON so a structure decodes straight into it.
type Question struct {
	ID                 string   `json:"id,omitempty"`
	Number             int      `json:"questionNumber,omitempty"`
	Type               string   `json:"type"`
	Points             float64  `json:"points"`
	CorrectAnswer      Key      `json:"correctAnswer"`
	AlternativeAnswers Texts    `json:"alternativeAnswers,omitempty"`
	CaseSensitive      bool     `json:"caseSensitive,omitempty"`
	Gaps               []Gap    `json:"gaps,omitempty"`
	CorrectPairs       Pairs    `json:"correctPairs,omitempty"`
}

// Gap is one blank of a gap-fill question. ID is informational only, the
// user value is looked up by position as "gap_<index>".
type Gap struct {
	ID           json.RawMessage `json:"id,omitempty"`
	Answer       string          `json:"answer"`
	Alternatives Texts           `json:"alternatives,omitempty"`
}

func (g *Gap) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           json.RawMessage `json:"id"`
		Answer       json.RawMessage `json:"answer"`
		Alternatives Texts           `json:"alternatives"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("grading: gap: %w", err)
	}
	answer, err := scalarText(raw.Answer)
	if err != nil {
		return fmt.Errorf("grading: gap answer: %w", err)
	}
	*g = Gap{ID: raw.ID, Answer: answer, Alternatives: raw.Alternatives}
	return nil
}

// Texts is a list of accepted answers. Authors often leave years and
// counts unquoted, so numbers and booleans decode as their literal text.
type Texts []string

func (t *Texts) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(Texts, len(items))
	for i, it := range items {
		s, err := scalarText(it)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = s
	}
	*t = out
	return nil
}

// scalarText reads a JSON string, number or boolean as text; null is "".
func scalarText(b json.RawMessage) (string, error) {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		return "", nil
	case b[0] == '"':
		var s string
		err := json.Unmarshal(b, &s)
		return s, err
	case b[0] == '{', b[0] == '[':
		return "", fmt.Errorf("expected a string, got %s", b[:1])
	}
	if !json.Valid(b) {
		return "", fmt.Errorf("invalid value %q", b)
	}
	return string(b), nil
}

// GapKey is the answer key for the gap at index i.
func GapKey(i int) string { return fmt.Sprintf("gap_%d", i) }

// Key is a correct answer: a single string or an ordered list.
type Key struct {
	text   string
	list   []string
	isList bool
}

func TextKey(s string) Key { return Key{text: s} }

func ListKey(items ...string) Key {
	return Key{list: append([]string(nil), items...), isList: true}
}

func (k Key) IsList() bool { return k.isList }

func (k Key) Text() string { return k.text }

func (k Key) List() []string { return append([]string(nil), k.list...) }

func (k Key) IsZero() bool { return !k.isList && k.text == "" }

func (k Key) Display() string {
	if k.isList {
		return strings.Join(k.list, ", ")
	}
	return k.text
}

func (k Key) MarshalJSON() ([]byte, error) {
	if k.isList {
		return json.Marshal(k.list)
	}
	return json.Marshal(k.text)
}

func (k *Key) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*k = Key{}
	case len(b) > 0 && b[0] == '[':
		var list Texts
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("grading: correctAnswer list: %w", err)
		}
		*k = ListKey(list...)
	default:
		// numeric keys such as "correctAnswer": 1945
		s, err := scalarText(b)
		if err != nil {
			return fmt.Errorf("grading: correctAnswer: %w", err)
		}
		*k = TextKey(s)
	}
	return nil
}

// Pairs maps premise ID to option ID for matching questions, in authoring order.
type Pairs []Entry

func (p Pairs) MarshalJSON() ([]byte, error) { return marshalEntries(p) }

func (p *Pairs) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("grading: correctPairs must be an object")
	}
	entries, err := decodeEntries(dec)
	if err != nil {
		return err
	}
	*p = entries
	return nil
}

// Result is the outcome of grading one question.
type Result struct {
	QuestionID     string  `json:"questionId"`
	QuestionNumber int     `json:"questionNumber"`
	UserAnswer     string  `json:"userAnswer"`
	CorrectAnswer  string  `json:"correctAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
	PointsEarned   float64 `json:"pointsEarned"`
	MaxPoints      float64 `json:"maxPoints"`
	Hits           int     `json:"hits"`
	Total          int     `json:"total"`
}
