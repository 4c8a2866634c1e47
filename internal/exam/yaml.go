package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/chipcloud/ielts-practice/internal/band"
)

// examFile is the seed file layout: a list of exams in the same shape as
// the JSON API, with content and questionStructure written as YAML maps.
type examFile struct {
	Exams []examYAML `yaml:"exams"`
}

type examYAML struct {
	ID               string         `yaml:"id"`
	Name             string         `yaml:"name"`
	Type             string         `yaml:"type"`
	IsPublished      bool           `yaml:"isPublished"`
	TimeLimitMinutes int            `yaml:"timeLimitMinutes"`
	Questions        []questionYAML `yaml:"questions"`
}

type questionYAML struct {
	ID        string    `yaml:"id"`
	Module    string    `yaml:"module"`
	Number    int       `yaml:"questionNumber"`
	MaxScore  float64   `yaml:"maxScore"`
	Content   yaml.Node `yaml:"content"`
	Structure yaml.Node `yaml:"questionStructure"`
}

// LoadExamsYAML parses a seed file. Map key order inside content and
// questionStructure is kept, so matching pairs stay in authoring order.
func LoadExamsYAML(r io.Reader) ([]Exam, error) {
	var f examFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse exams yaml: %w", err)
	}
	out := make([]Exam, 0, len(f.Exams))
	for i, ey := range f.Exams {
		e := Exam{
			ID:               ey.ID,
			Name:             ey.Name,
			Type:             band.Variant(ey.Type),
			IsPublished:      ey.IsPublished,
			TimeLimitMinutes: ey.TimeLimitMinutes,
		}
		for j, qy := range ey.Questions {
			structure, err := nodeJSON(&qy.Structure)
			if err != nil {
				return nil, fmt.Errorf("exam %d question %d: questionStructure: %w", i+1, j+1, err)
			}
			content, err := nodeJSON(&qy.Content)
			if err != nil {
				return nil, fmt.Errorf("exam %d question %d: content: %w", i+1, j+1, err)
			}
			e.Questions = append(e.Questions, Question{
				ID:        qy.ID,
				Module:    band.Module(qy.Module),
				Number:    qy.Number,
				MaxScore:  qy.MaxScore,
				Content:   content,
				Structure: structure,
			})
		}
		out = append(out, e)
	}
	return out, nil
}

// nodeJSON renders a YAML node as JSON without reordering mapping keys.
// An absent node yields nil.
func nodeJSON(n *yaml.Node) (json.RawMessage, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := writeNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(b)
	default:
		return fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
	return nil
}
