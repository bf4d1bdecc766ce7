package service

import (
	"context"
	"time"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
)

// The stores below are implemented by internal/repository over pgx and by
// in-package fakes in tests. Services accept interfaces and return structs.

// AttemptStore is the attempt persistence boundary.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	GetOpenByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamAttempt, error)
	Create(ctx context.Context, a *model.ExamAttempt) error
	SetVerification(ctx context.Context, id uuid.UUID, rec model.VerificationRecord) error
	AppendWarning(ctx context.Context, id uuid.UUID, w model.Warning) error
	Activate(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	Terminate(ctx context.Context, id uuid.UUID) (bool, error)
	MergeAnswers(ctx context.Context, id uuid.UUID, answers model.AnswerMap) (bool, error)
	SubmitResult(ctx context.Context, a *model.ExamAttempt) (bool, error)
	SetRecordingStream(ctx context.Context, id uuid.UUID, patch model.RecordingSet) error
	SetChatBlocked(ctx context.Context, id uuid.UUID, blocked bool) error
	ReviseMarks(ctx context.Context, a *model.ExamAttempt) (bool, error)
	ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
}

// ExamStore reads exam definitions.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// QuestionStore reads question definitions for the resolver fallback chain.
type QuestionStore interface {
	FindByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]model.Question, error)
	FindBySubjectIDs(ctx context.Context, subjectIDs []uuid.UUID) ([]model.Question, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// ChatStore persists proctoring chat messages.
type ChatStore interface {
	Insert(ctx context.Context, m *model.ChatMessage) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ChatMessage, error)
}

// CheckStore reads the periodic re-verification log. Writes go through
// the proctor event queue.
type CheckStore interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.PeriodicCheck, error)
}

// EventBus is the redis-backed queue/pubsub/cache facade services use.
// Implemented by internal/bus.
type EventBus interface {
	Enqueue(ctx context.Context, queue string, v any) error
	Publish(ctx context.Context, channel string, v any) error
	CacheStart(ctx context.Context, attemptID string, t time.Time) error
	LookupStart(ctx context.Context, attemptID string) (time.Time, bool, error)
	CacheAnswer(ctx context.Context, attemptID, questionID, value string) error
	AnsweredCount(ctx context.Context, attemptID string) (int64, error)
	ClearAnswers(ctx context.Context, attemptID string) error
}
