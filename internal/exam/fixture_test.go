package exam

import (
	"encoding/json"

	"github.com/chipcloud/ielts-practice/internal/band"
)

func sampleExam() Exam {
	return Exam{
		Name:             "Cambridge 18 Test 1",
		Type:             band.Academic,
		IsPublished:      true,
		TimeLimitMinutes: 60,
		Questions: []Question{
			{
				ID:        "q1",
				Module:    band.Reading,
				Number:    1,
				Content:   json.RawMessage(`{"passage":"The capital of France..."}`),
				Structure: json.RawMessage(`{"type":"short_answer","correctAnswer":"Paris","alternativeAnswers":["paris city"]}`),
			},
			{
				ID:        "q2",
				Module:    band.Reading,
				Number:    2,
				Structure: json.RawMessage(`{"type":"gap_fill","points":2,"gapText":"The ___ chased the ___","gaps":[{"id":1,"answer":"cat"},{"id":2,"answer":"dog","alternatives":["puppy"]}]}`),
			},
			{
				ID:        "q3",
				Module:    band.Reading,
				Number:    3,
				Structure: json.RawMessage(`{"type":"true_false_not_given","correctAnswer":"TRUE"}`),
			},
			{
				ID:        "q4",
				Module:    band.Listening,
				Number:    4,
				Structure: json.RawMessage(`{"type":"multiple_choice","options":["A","B","C"],"correctAnswer":"B"}`),
			},
		},
	}
}
