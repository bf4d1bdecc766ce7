package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatSender identifies the author side of a proctoring chat message.
type ChatSender string

const (
	ChatSenderStudent ChatSender = "student"
	ChatSenderAdmin   ChatSender = "admin"
)

// ChatMessage is one proctoring chat entry, keyed by (attempt, exam).
type ChatMessage struct {
	ID        uuid.UUID  `json:"id"`
	AttemptID uuid.UUID  `json:"attempt_id"`
	ExamID    uuid.UUID  `json:"exam_id"`
	Sender    ChatSender `json:"sender"`
	SenderID  int        `json:"sender_id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}

// SendMessageRequest is the payload for posting a chat message.
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,min=1,max=2000"`
}
