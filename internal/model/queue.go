package model

import (
	"github.com/google/uuid"
)

// AnswerQueueItem is the payload pushed onto the answer persistence
// queue. The worker merges batches of these into the attempts table.
type AnswerQueueItem struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Answers   AnswerMap `json:"answers"`
}

// ProctorEventQueueItem is the payload pushed onto the proctor event
// queue for asynchronous persistence of periodic checks.
type ProctorEventQueueItem struct {
	Check PeriodicCheck `json:"check"`
}
