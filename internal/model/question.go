package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the gradable question shapes.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionTypeLongAnswer     QuestionType = "LONG_ANSWER"
)

// Subjective reports whether the type is never auto-scored.
func (t QuestionType) Subjective() bool {
	return t == QuestionTypeLongAnswer
}

// Option is one answer choice with its correctness flag.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is an external, read-only entity for this service.
type Question struct {
	ID        uuid.UUID    `json:"id"`
	GroupID   *uuid.UUID   `json:"group_id,omitempty"`
	SubjectID *uuid.UUID   `json:"subject_id,omitempty"`
	Text      string       `json:"text"`
	Type      QuestionType `json:"type"`
	Options   []Option     `json:"options"`
	Marks     float64      `json:"marks"`
}

// MarkValue returns the question's marks, defaulting to 1 when unset.
func (q *Question) MarkValue() float64 {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}

// CorrectTexts returns the texts of all options flagged correct.
func (q *Question) CorrectTexts() []string {
	var out []string
	for _, o := range q.Options {
		if o.Correct {
			out = append(out, o.Text)
		}
	}
	return out
}
