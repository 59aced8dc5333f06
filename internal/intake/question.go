package intake

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Shape is the answer shape of a question. Free text is also available as an
// extra input modality on choice questions through Question.AllowText.
type Shape string

const (
	SingleChoice Shape = "single_choice"
	FreeText     Shape = "free_text"
	MultiChoice  Shape = "multi_choice"
)

// Valid reports whether s is one of the known shapes.
func (s Shape) Valid() bool {
	switch s {
	case SingleChoice, FreeText, MultiChoice:
		return true
	}
	return false
}

// HeaderKeyPrefix prefixes the key of the synthetic header question emitted
// for each selected complaint.
const HeaderKeyPrefix = "complaint-header:"

// Question is a single step of the intake flow.
type Question struct {
	Key       string   `json:"key" yaml:"key"`
	Prompt    string   `json:"prompt" yaml:"prompt"`
	Shape     Shape    `json:"shape" yaml:"shape"`
	Options   []string `json:"options,omitempty" yaml:"options,omitempty"`
	AllowText bool     `json:"allow_text,omitempty" yaml:"allow_text,omitempty"`
	// Complaint is only set on header questions and names the complaint the
	// following questions belong to.
	Complaint string `json:"complaint,omitempty" yaml:"-"`
}

// IsHeader reports whether q opens a complaint block.
func (q Question) IsHeader() bool {
	return q.Complaint != ""
}

// IsMulti reports whether answers to q are committed as a set.
func (q Question) IsMulti() bool {
	return q.Shape == MultiChoice
}

func (q Question) clone() Question {
	if q.Options != nil {
		q.Options = append([]string(nil), q.Options...)
	}
	return q
}

// Queue is the compiled, ordered list of questions for one session.
type Queue []Question

// Keys returns the question keys in queue order.
func (q Queue) Keys() []string {
	keys := make([]string, len(q))
	for i, question := range q {
		keys[i] = question.Key
	}
	return keys
}

// Complaints returns the complaint names in the order their headers appear.
func (q Queue) Complaints() []string {
	var out []string
	for _, question := range q {
		if question.IsHeader() {
			out = append(out, question.Complaint)
		}
	}
	return out
}

// Answer is either a single value or a set of values. It encodes to JSON as
// a string or an array of strings respectively.
type Answer struct {
	Value  string
	Values []string
}

// Single returns a single-valued answer.
func Single(v string) Answer { return Answer{Value: v} }

// Multi returns a set-valued answer.
func Multi(vs ...string) Answer { return Answer{Values: append([]string{}, vs...)} }

// IsMulti reports whether a holds a set.
func (a Answer) IsMulti() bool { return a.Values != nil }

// IsEmpty reports whether a carries no value at all.
func (a Answer) IsEmpty() bool {
	return strings.TrimSpace(a.Value) == "" && len(a.Values) == 0
}

// Contains reports whether v is one of the answer's values.
func (a Answer) Contains(v string) bool {
	if !a.IsMulti() {
		return a.Value == v
	}
	for _, x := range a.Values {
		if x == v {
			return true
		}
	}
	return false
}

func (a Answer) clone() Answer {
	if a.Values != nil {
		a.Values = append([]string{}, a.Values...)
	}
	return a
}

// MarshalJSON implements json.Marshaler.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsMulti() {
		return json.Marshal(a.Values)
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return err
		}
		*a = Answer{Values: append([]string{}, vs...)}
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Answer{Value: v}
	return nil
}
