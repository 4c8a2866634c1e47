package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape of a submitted answer.
type Kind int

const (
	KindEmpty Kind = iota
	KindText       // multiple choice, short answer, true/false
	KindList       // multi-select
	KindKeyed      // gap fill (gap_<i>) and matching (premise id)
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindKeyed:
		return "keyed"
	default:
		return "empty"
	}
}

// Entry is one sub-answer of a keyed answer.
type Entry struct {
	Key   string
	Value string
}

// Answer is what a user submitted for one question. The zero value means
// unanswered. Keyed answers keep the order they were decoded in.
type Answer struct {
	kind  Kind
	text  string
	items []string
	keyed []Entry
}

// Answers maps question ID to the submitted answer.
type Answers map[string]Answer

func TextAnswer(s string) Answer { return Answer{kind: KindText, text: s} }

func ListAnswer(items ...string) Answer {
	return Answer{kind: KindList, items: append([]string(nil), items...)}
}

// KeyedAnswer builds a keyed answer in the given order. Later duplicates
// overwrite the value but keep the first position.
func KeyedAnswer(entries ...Entry) Answer {
	a := Answer{kind: KindKeyed}
	for _, e := range entries {
		a.keyed = setEntry(a.keyed, e.Key, e.Value)
	}
	return a
}

// MapAnswer builds a keyed answer from a Go map; keys are sorted since map
// iteration order is random.
func MapAnswer(m map[string]string) Answer {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	a := Answer{kind: KindKeyed, keyed: make([]Entry, 0, len(keys))}
	for _, k := range keys {
		a.keyed = append(a.keyed, Entry{Key: k, Value: m[k]})
	}
	return a
}

func (a Answer) Kind() Kind { return a.kind }

func (a Answer) Text() string { return a.text }

func (a Answer) Items() []string { return append([]string(nil), a.items...) }

func (a Answer) Entries() []Entry { return append([]Entry(nil), a.keyed...) }

// Lookup returns the sub-answer stored under key.
func (a Answer) Lookup(key string) (string, bool) {
	for _, e := range a.keyed {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns keyed values in insertion order.
func (a Answer) Values() []string {
	out := make([]string, len(a.keyed))
	for i, e := range a.keyed {
		out[i] = e.Value
	}
	return out
}

func (a Answer) IsEmpty() bool {
	switch a.kind {
	case KindText:
		return a.text == ""
	case KindList:
		return len(a.items) == 0
	case KindKeyed:
		return len(a.keyed) == 0
	default:
		return true
	}
}

// Display renders the answer for result pages.
func (a Answer) Display() string {
	switch a.kind {
	case KindText:
		return a.text
	case KindList:
		return strings.Join(a.items, ", ")
	case KindKeyed:
		parts := make([]string, len(a.keyed))
		for i, e := range a.keyed {
			parts[i] = e.Key + ": " + e.Value
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// Merge overlays b's keyed entries onto a. Any other shape in b replaces a.
func (a Answer) Merge(b Answer) Answer {
	if a.kind != KindKeyed || b.kind != KindKeyed {
		return b
	}
	out := Answer{kind: KindKeyed, keyed: a.Entries()}
	for _, e := range b.keyed {
		out.keyed = setEntry(out.keyed, e.Key, e.Value)
	}
	return out
}

func setEntry(entries []Entry, key, value string) []Entry {
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Value = value
			return entries
		}
	}
	return append(entries, Entry{Key: key, Value: value})
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case KindText:
		return json.Marshal(a.text)
	case KindList:
		return json.Marshal(a.items)
	case KindKeyed:
		return marshalEntries(a.keyed)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, a string, an array or an object. Scalars that
// are not strings (numbers, booleans) are kept as their JSON text.
func (a *Answer) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case nil:
		*a = Answer{}
	case string:
		*a = TextAnswer(v)
	case json.Number:
		*a = TextAnswer(v.String())
	case bool:
		*a = TextAnswer(strconv.FormatBool(v))
	case json.Delim:
		switch v {
		case '[':
			items := []string{}
			for dec.More() {
				s, err := decodeLeaf(dec)
				if err != nil {
					return err
				}
				items = append(items, s)
			}
			*a = Answer{kind: KindList, items: items}
		case '{':
			entries, err := decodeEntries(dec)
			if err != nil {
				return err
			}
			*a = Answer{kind: KindKeyed, keyed: entries}
		default:
			return fmt.Errorf("grading: unexpected delimiter %q in answer", v)
		}
	}
	return nil
}

// decodeEntries reads object members up to and including the closing brace.
// The opening brace must already be consumed.
func decodeEntries(dec *json.Decoder) ([]Entry, error) {
	entries := []Entry{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("grading: object key %v is not a string", kt)
		}
		val, err := decodeLeaf(dec)
		if err != nil {
			return nil, err
		}
		entries = setEntry(entries, key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func decodeLeaf(dec *json.Decoder) (string, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", err
	}
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		return "", nil
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

func marshalEntries(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
