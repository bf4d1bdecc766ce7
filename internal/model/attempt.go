package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the exam attempt state machine.
//
//	NOT_STARTED --(authorized verification | start)--> ACTIVE
//	ACTIVE --(submit | timer expiry | force-submit)--> SUBMITTED
//	ACTIVE / NOT_STARTED --(verification rejected)--> TERMINATED
//
// SUBMITTED and TERMINATED are terminal.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusActive     AttemptStatus = "ACTIVE"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusTerminated AttemptStatus = "TERMINATED"
)

// Terminal reports whether no transition may leave this status.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusTerminated
}

// ResultStatus gates result visibility to the student.
type ResultStatus string

const (
	ResultStatusNone      ResultStatus = "NONE"
	ResultStatusDraft     ResultStatus = "DRAFT"
	ResultStatusPublished ResultStatus = "PUBLISHED"
)

// WarningType distinguishes system-generated from admin-issued warnings.
type WarningType string

const (
	WarningTypeAutomated WarningType = "AUTOMATED"
	WarningTypeAdmin     WarningType = "ADMIN"
)

// Warning is an audit entry on an attempt. Warnings are never removed.
type Warning struct {
	Message   string      `json:"message"`
	Type      WarningType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// VerificationRecord holds the pre-exam identity evidence paths.
// Periodic re-check samples live in their own table and are loaded on demand.
type VerificationRecord struct {
	FaceCapturePath string `json:"face_capture_path,omitempty"`
	IDCapturePath   string `json:"id_capture_path,omitempty"`
}

// PeriodicCheck is one in-exam re-verification sample.
type PeriodicCheck struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	CapturePath string    `json:"capture_path,omitempty"`
	Warning     bool      `json:"warning"`
	Note        string    `json:"note,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// RecordingSet records the storage locators for the camera and screen
// streams. Each (id, locator) pair is written once per stream.
type RecordingSet struct {
	CameraVideo       string     `json:"camera_video,omitempty"`
	CameraRecordingID string     `json:"camera_recording_id,omitempty"`
	ScreenVideo       string     `json:"screen_video,omitempty"`
	ScreenRecordingID string     `json:"screen_recording_id,omitempty"`
	RecordedAt        *time.Time `json:"recorded_at,omitempty"`
}

// ScoreDiagnostic distinguishes the two zero-score shapes.
type ScoreDiagnostic string

const (
	DiagnosticNone                ScoreDiagnostic = ""
	DiagnosticNoQuestionsResolved ScoreDiagnostic = "NO_QUESTIONS_RESOLVED"
	DiagnosticNoAnswersSubmitted  ScoreDiagnostic = "NO_ANSWERS_SUBMITTED"
)

// ExamAttempt is one student's occurrence of taking one exam.
// Attempts are never physically deleted; terminal states are retained
// for audit.
type ExamAttempt struct {
	ID     uuid.UUID `json:"id"`
	ExamID uuid.UUID `json:"exam_id"`
	UserID int       `json:"user_id"`

	// SessionToken must accompany every mutating call. Never exposed in
	// API payloads except the start/verification response.
	SessionToken string `json:"-"`

	Status       AttemptStatus `json:"status"`
	ResultStatus ResultStatus  `json:"result_status"`

	Verification VerificationRecord `json:"verification"`
	Warnings     []Warning          `json:"warnings"`
	Recordings   RecordingSet       `json:"recordings"`
	ChatBlocked  bool               `json:"chat_blocked"`

	Answers     AnswerMap          `json:"answers,omitempty"`
	ManualMarks map[string]float64 `json:"manual_marks,omitempty"`

	Score      float64         `json:"score"`
	TotalMarks float64         `json:"total_marks"`
	Percentage float64         `json:"percentage"`
	Passed     bool            `json:"passed"`
	Diagnostic ScoreDiagnostic `json:"diagnostic,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ModifiedBy  *int       `json:"modified_by,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AppendWarning appends an audit warning stamped now.
func (a *ExamAttempt) AppendWarning(msg string, typ WarningType) {
	a.Warnings = append(a.Warnings, Warning{Message: msg, Type: typ, Timestamp: time.Now()})
}

// PeriodicCheckRequest is the payload for an in-exam re-verification sample.
type PeriodicCheckRequest struct {
	SessionToken string `json:"session_token" binding:"required"`
	CapturePath  string `json:"capture_path" binding:"omitempty,max=512"`
	Warning      bool   `json:"warning"`
	Note         string `json:"note" binding:"omitempty,max=1000"`
}

// SaveAnswersRequest is the payload for autosaving one or more answers.
type SaveAnswersRequest struct {
	SessionToken string    `json:"session_token" binding:"required"`
	Answers      AnswerMap `json:"answers" binding:"required"`
}

// SubmitRequest is the payload for submitting an attempt.
type SubmitRequest struct {
	SessionToken string    `json:"session_token" binding:"required"`
	Answers      AnswerMap `json:"answers"`
}

// ReviseMarksRequest is the admin payload for overriding per-question marks.
type ReviseMarksRequest struct {
	Marks map[string]float64 `json:"marks" binding:"required,min=1"`
}

// SetChatBlockedRequest toggles the chat block flag.
type SetChatBlockedRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}
