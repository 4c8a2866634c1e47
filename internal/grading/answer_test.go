package grading_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipcloud/ielts-practice/internal/grading"
)

func TestAnswerDecodeShapes(t *testing.T) {
	cases := []struct {
		raw     string
		kind    grading.Kind
		display string
	}{
		{`null`, grading.KindEmpty, ""},
		{`"B"`, grading.KindText, "B"},
		{`12`, grading.KindText, "12"},
		{`true`, grading.KindText, "true"},
		{`["A","C"]`, grading.KindList, "A, C"},
		{`{"z":"1","a":"2"}`, grading.KindKeyed, "z: 1, a: 2"},
		{`{"gap_0":null,"gap_1":3}`, grading.KindKeyed, "gap_0: , gap_1: 3"},
	}
	for _, c := range cases {
		a := decodeAnswer(t, c.raw)
		assert.Equal(t, c.kind, a.Kind(), c.raw)
		assert.Equal(t, c.display, a.Display(), c.raw)
	}
}

func TestAnswerKeepsObjectOrder(t *testing.T) {
	a := decodeAnswer(t, `{"P3":"c","P1":"a","P2":"b"}`)
	assert.Equal(t, []string{"c", "a", "b"}, a.Values())

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"P3":"c","P1":"a","P2":"b"}`, string(out))
	assert.Equal(t, `{"P3":"c","P1":"a","P2":"b"}`, string(out))
}

func TestAnswersMapDecode(t *testing.T) {
	var as grading.Answers
	require.NoError(t, json.Unmarshal([]byte(`{"q1":"A","q2":{"gap_0":"x"},"q3":null}`), &as))
	assert.Equal(t, grading.KindText, as["q1"].Kind())
	v, ok := as["q2"].Lookup("gap_0")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.True(t, as["q3"].IsEmpty())
}

func TestAnswerMerge(t *testing.T) {
	a := grading.KeyedAnswer(grading.Entry{Key: "gap_0", Value: "x"}, grading.Entry{Key: "gap_1", Value: "y"})
	b := grading.KeyedAnswer(grading.Entry{Key: "gap_1", Value: "z"}, grading.Entry{Key: "gap_2", Value: "w"})
	m := a.Merge(b)
	assert.Equal(t, []string{"x", "z", "w"}, m.Values())

	assert.Equal(t, "C", a.Merge(grading.TextAnswer("C")).Text())
}

func TestQuestionDecode(t *testing.T) {
	q := decodeQuestion(t, `{"type":"short_answer","points":2,"correctAnswer":1945,
		"alternativeAnswers":["nineteen forty-five"],"correctPairs":{"b":"2","a":"1"}}`)
	assert.Equal(t, "1945", q.CorrectAnswer.Text())
	assert.False(t, q.CorrectAnswer.IsList())
	require.Len(t, q.CorrectPairs, 2)
	assert.Equal(t, "b", q.CorrectPairs[0].Key)

	q = decodeQuestion(t, `{"type":"gap_fill","correctAnswer":["a","b"]}`)
	assert.Equal(t, []string{"a", "b"}, q.CorrectAnswer.List())

	var bad grading.Question
	assert.Error(t, json.Unmarshal([]byte(`{"correctPairs":["x"]}`), &bad))
}

func TestQuestionDecodeUnquotedScalars(t *testing.T) {
	q := decodeQuestion(t, `{"type":"gap_fill","gaps":[{"id":1,"answer":1945,"alternatives":[1945.0,"nineteen"]},{"answer":"cat"}],
		"correctAnswer":[12,"b"],"alternativeAnswers":[true]}`)
	require.Len(t, q.Gaps, 2)
	assert.Equal(t, "1945", q.Gaps[0].Answer)
	assert.Equal(t, grading.Texts{"1945.0", "nineteen"}, q.Gaps[0].Alternatives)
	assert.Equal(t, "cat", q.Gaps[1].Answer)
	assert.Equal(t, []string{"12", "b"}, q.CorrectAnswer.List())
	assert.Equal(t, grading.Texts{"true"}, q.AlternativeAnswers)

	res := grading.GradeQuestion(q, grading.KeyedAnswer(
		grading.Entry{Key: "gap_0", Value: "1945"},
		grading.Entry{Key: "gap_1", Value: "cat"},
	))
	assert.True(t, res.IsCorrect)

	for _, in := range []string{
		`{"gaps":[{"answer":{"x":1}}]}`,
		`{"gaps":[{"answer":"a","alternatives":[["b"]]}]}`,
		`{"correctAnswer":{"a":"b"}}`,
		`{"alternativeAnswers":"a"}`,
	} {
		var bad grading.Question
		assert.Error(t, json.Unmarshal([]byte(in), &bad), in)
	}
}
