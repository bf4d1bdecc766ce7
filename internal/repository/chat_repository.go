package repository

import (
	"context"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatRepository persists proctoring chat messages.
type ChatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

// Insert stores a chat message and fills in its id and timestamp.
func (r *ChatRepository) Insert(ctx context.Context, m *model.ChatMessage) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (attempt_id, exam_id, sender, sender_id, body)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		m.AttemptID, m.ExamID, m.Sender, m.SenderID, m.Body,
	).Scan(&m.ID, &m.CreatedAt)
}

// ListByAttempt returns all messages for an attempt, oldest first.
func (r *ChatRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ChatMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, exam_id, sender, sender_id, body, created_at
		 FROM chat_messages
		 WHERE attempt_id = $1
		 ORDER BY created_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.AttemptID, &m.ExamID, &m.Sender, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
