package repository

import (
	"context"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckRepository reads the periodic re-verification log. Writes go through
// the proctor event worker, which batches inserts off the request path.
type CheckRepository struct {
	pool *pgxpool.Pool
}

// NewCheckRepository creates a new CheckRepository.
func NewCheckRepository(pool *pgxpool.Pool) *CheckRepository {
	return &CheckRepository{pool: pool}
}

// ListByAttempt returns the periodic check log for an attempt, oldest first.
func (r *CheckRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.PeriodicCheck, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, capture_path, warning, note, checked_at
		 FROM verification_checks
		 WHERE attempt_id = $1
		 ORDER BY checked_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []model.PeriodicCheck
	for rows.Next() {
		var c model.PeriodicCheck
		if err := rows.Scan(&c.AttemptID, &c.CapturePath, &c.Warning, &c.Note, &c.CheckedAt); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
