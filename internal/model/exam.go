package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPassingPercentage applies when an exam does not set one.
const DefaultPassingPercentage = 40.0

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the read-only exam definition the attempt lifecycle operates on.
// Exam CRUD belongs to the wider platform, not this service.
type Exam struct {
	ID                uuid.UUID   `json:"id"`
	Title             string      `json:"title"`
	DurationMinutes   int         `json:"duration_minutes"`
	PassingPercentage *float64    `json:"passing_percentage,omitempty"`
	QuestionGroupIDs  []uuid.UUID `json:"question_group_ids,omitempty"`
	SubjectIDs        []uuid.UUID `json:"subject_ids,omitempty"`
	Status            ExamStatus  `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// PassMark returns the configured passing percentage or the default.
func (e *Exam) PassMark() float64 {
	if e.PassingPercentage != nil {
		return *e.PassingPercentage
	}
	return DefaultPassingPercentage
}
