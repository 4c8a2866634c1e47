package exam

import (
	"bytes"
	"encoding/json"
)

// answerFields never leave the server in candidate-facing views.
var answerFields = map[string]bool{
	"correctAnswer":      true,
	"alternativeAnswers": true,
	"correctPairs":       true,
	"sampleAnswer":       true,
}

// StripAnswers removes answer keys from a question structure. Gaps keep only
// their id. Everything else (type, instruction, options, gapText, premises)
// passes through in its original order.
func StripAnswers(structure json.RawMessage) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(structure))
	tok, err := dec.Token()
	if err != nil {
		return json.RawMessage(`{}`)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return json.RawMessage(`{}`)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return json.RawMessage(`{}`)
		}
		key, _ := kt.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return json.RawMessage(`{}`)
		}
		if answerFields[key] {
			continue
		}
		if key == "gaps" {
			val = stripGaps(val)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func stripGaps(raw json.RawMessage) json.RawMessage {
	var gaps []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &gaps); err != nil || gaps == nil {
		return raw
	}
	out := make([]map[string]json.RawMessage, len(gaps))
	for i, g := range gaps {
		out[i] = map[string]json.RawMessage{}
		if id, ok := g["id"]; ok {
			out[i]["id"] = id
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`[]`)
	}
	return b
}

// Stripped returns a copy of e safe to show a candidate.
func (e Exam) Stripped() Exam {
	qs := make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Structure = StripAnswers(q.Structure)
		qs[i] = q
	}
	e.Questions = qs
	return e
}
