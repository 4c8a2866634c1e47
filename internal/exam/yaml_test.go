package exam

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/grading"
)

const seedYAML = `
exams:
  - id: y1
    name: YAML exam
    type: general
    isPublished: true
    questions:
      - module: Listening
        content:
          audio: part1.mp3
        questionStructure:
          type: matching
          points: 2
          correctPairs:
            "10": B
            "2": A
      - module: reading
        questionStructure: &tf
          type: true_false_not_given
          correctAnswer: "NOT GIVEN"
          caseSensitive: false
      - module: reading
        questionStructure: *tf
`

func TestLoadExamsYAML(t *testing.T) {
	exams, err := LoadExamsYAML(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, exams, 1)
	e := exams[0]
	require.Len(t, e.Questions, 3)

	assert.JSONEq(t, `{"audio":"part1.mp3"}`, string(e.Questions[0].Content))
	assert.Equal(t, `{"type":"matching","points":2,"correctPairs":{"10":"B","2":"A"}}`, string(e.Questions[0].Structure))
	assert.Nil(t, e.Questions[1].Content)
	assert.Equal(t, string(e.Questions[1].Structure), string(e.Questions[2].Structure), "aliases expand")

	gq, err := e.Questions[0].Grading()
	require.NoError(t, err)
	require.Len(t, gq.CorrectPairs, 2)
	assert.Equal(t, "10", gq.CorrectPairs[0].Key, "authoring order kept")

	stored, err := NewInMemoryStore().PutExam(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, band.General, stored.Type)
	assert.Equal(t, band.Listening, stored.Questions[0].Module)

	res := grading.GradeQuestion(gq, grading.MapAnswer(map[string]string{"10": "b", "2": "A"}))
	assert.Equal(t, 2.0, res.PointsEarned)
}

func TestLoadExamsYAMLErrors(t *testing.T) {
	_, err := LoadExamsYAML(strings.NewReader("exams: [ {name: x, unknownField: 1} ]"))
	assert.Error(t, err)
	_, err = LoadExamsYAML(strings.NewReader(":::"))
	assert.Error(t, err)
}
