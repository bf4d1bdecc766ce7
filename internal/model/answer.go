package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// AnswerKind discriminates the shapes a submitted answer can take.
type AnswerKind int

const (
	AnswerEmpty AnswerKind = iota
	AnswerSingle
	AnswerMultiple
)

// Answer is a tagged union over the value a student submits for one
// question: nothing, a single string, or a list of strings. Clients send
// whichever shape matches the question type; comparison logic switches on
// the kind so a mismatched shape is caught at the boundary instead of
// mid-computation.
type Answer struct {
	kind     AnswerKind
	single   string
	multiple []string
}

// SingleAnswer builds a single-valued answer.
func SingleAnswer(v string) Answer {
	if strings.TrimSpace(v) == "" {
		return Answer{}
	}
	return Answer{kind: AnswerSingle, single: v}
}

// MultipleAnswer builds a list-valued answer. An empty list is Empty.
func MultipleAnswer(vs []string) Answer {
	clean := make([]string, 0, len(vs))
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Answer{}
	}
	return Answer{kind: AnswerMultiple, multiple: clean}
}

// Kind returns the discriminator.
func (a Answer) Kind() AnswerKind { return a.kind }

// IsEmpty reports whether no answer value was submitted.
func (a Answer) IsEmpty() bool { return a.kind == AnswerEmpty }

// Values returns the answer as a flat list regardless of kind.
func (a Answer) Values() []string {
	switch a.kind {
	case AnswerSingle:
		return []string{a.single}
	case AnswerMultiple:
		return a.multiple
	default:
		return nil
	}
}

// Single returns the single value and whether the answer holds exactly one.
func (a Answer) Single() (string, bool) {
	if a.kind == AnswerSingle {
		return a.single, true
	}
	if a.kind == AnswerMultiple && len(a.multiple) == 1 {
		return a.multiple[0], true
	}
	return "", false
}

// ValueSet returns the answer values deduplicated and sorted, verbatim.
// Choice grading compares these as exact sets; only short-answer grading
// is allowed to fold case or trim.
func (a Answer) ValueSet() []string {
	seen := make(map[string]struct{})
	for _, v := range a.Values() {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// UnmarshalJSON accepts a JSON string, array of strings, or null.
func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = Answer{}
		return nil
	}
	if trimmed[0] == '[' {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*a = MultipleAnswer(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return err
	}
	*a = SingleAnswer(s)
	return nil
}

// MarshalJSON emits the original shape: string, array, or null.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case AnswerSingle:
		return json.Marshal(a.single)
	case AnswerMultiple:
		return json.Marshal(a.multiple)
	default:
		return []byte("null"), nil
	}
}

// AnswerMap maps a question id to the submitted answer value.
type AnswerMap map[string]Answer

// Answered counts non-empty entries.
func (m AnswerMap) Answered() int {
	n := 0
	for _, a := range m {
		if !a.IsEmpty() {
			n++
		}
	}
	return n
}

// QuestionIDs returns the keys in sorted order.
func (m AnswerMap) QuestionIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
