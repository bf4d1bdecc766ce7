package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoOpenAttempt is returned by Create when the partial unique index on
// (exam_id, user_id) rejects a second non-terminal attempt.
var ErrNoOpenAttempt = errors.New("open attempt already exists")

const attemptColumns = `id, exam_id, user_id, session_token, status, result_status,
	verification, warnings, recordings, chat_blocked, answers, manual_marks,
	score, total_marks, percentage, passed, diagnostic,
	started_at, submitted_at, modified_by, modified_at, created_at, updated_at`

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	var verification, warnings, recordings, answers, manualMarks []byte
	err := row.Scan(
		&a.ID, &a.ExamID, &a.UserID, &a.SessionToken, &a.Status, &a.ResultStatus,
		&verification, &warnings, &recordings, &a.ChatBlocked, &answers, &manualMarks,
		&a.Score, &a.TotalMarks, &a.Percentage, &a.Passed, &a.Diagnostic,
		&a.StartedAt, &a.SubmittedAt, &a.ModifiedBy, &a.ModifiedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalInto(verification, &a.Verification); err != nil {
		return nil, err
	}
	if err := unmarshalInto(warnings, &a.Warnings); err != nil {
		return nil, err
	}
	if err := unmarshalInto(recordings, &a.Recordings); err != nil {
		return nil, err
	}
	if err := unmarshalInto(answers, &a.Answers); err != nil {
		return nil, err
	}
	if err := unmarshalInto(manualMarks, &a.ManualMarks); err != nil {
		return nil, err
	}
	return a, nil
}

func unmarshalInto(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

// GetOpenByExamAndUser retrieves the non-terminal attempt for an
// (exam, user) pair, if one exists.
func (r *AttemptRepository) GetOpenByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND user_id = $2 AND status IN ('NOT_STARTED', 'ACTIVE')`,
		examID, userID)
	return scanAttempt(row)
}

// Create inserts a new attempt. The insert races against the partial unique
// index over non-terminal attempts: a concurrent creation for the same
// (exam, user) pair makes ON CONFLICT suppress the row, which surfaces as
// ErrNoOpenAttempt so the caller can fetch and reuse the winner.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	verification, err := json.Marshal(a.Verification)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	warnings, err := json.Marshal(warningsOrEmpty(a.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts
			(exam_id, user_id, session_token, status, result_status, verification, warnings, started_at)
		 VALUES ($1, $2, $3, $4, 'NONE', $5, $6, $7)
		 ON CONFLICT (exam_id, user_id) WHERE status IN ('NOT_STARTED', 'ACTIVE') DO NOTHING
		 RETURNING id, created_at, updated_at`,
		a.ExamID, a.UserID, a.SessionToken, a.Status, verification, warnings, a.StartedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoOpenAttempt
	}
	return err
}

func warningsOrEmpty(w []model.Warning) []model.Warning {
	if w == nil {
		return []model.Warning{}
	}
	return w
}

// SetVerification replaces the attempt's verification evidence record.
func (r *AttemptRepository) SetVerification(ctx context.Context, id uuid.UUID, rec model.VerificationRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_attempts SET verification = $2, updated_at = NOW() WHERE id = $1`,
		id, raw)
	return err
}

// AppendWarning appends one warning to the attempt's audit list atomically.
func (r *AttemptRepository) AppendWarning(ctx context.Context, id uuid.UUID, w model.Warning) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET warnings = warnings || jsonb_build_array($2::jsonb), updated_at = NOW()
		 WHERE id = $1`,
		id, raw)
	return err
}

// Activate transitions NOT_STARTED -> ACTIVE. Returns false when the
// attempt was not in NOT_STARTED.
func (r *AttemptRepository) Activate(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'ACTIVE', started_at = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'NOT_STARTED'`,
		id, startedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Terminate transitions a non-terminal attempt to TERMINATED. Returns false
// when the attempt was already terminal.
func (r *AttemptRepository) Terminate(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'TERMINATED', updated_at = NOW()
		 WHERE id = $1 AND status IN ('NOT_STARTED', 'ACTIVE')`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MergeAnswers merges the given answers into the attempt's answer map.
// Only ACTIVE attempts accept answer writes.
func (r *AttemptRepository) MergeAnswers(ctx context.Context, id uuid.UUID, answers model.AnswerMap) (bool, error) {
	raw, err := json.Marshal(answers)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET answers = answers || $2::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = 'ACTIVE'`,
		id, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SubmitResult atomically transitions ACTIVE -> SUBMITTED and stores the
// computed result. Returns false when the attempt was not ACTIVE, which
// callers treat as the idempotent-or-conflict branch.
func (r *AttemptRepository) SubmitResult(ctx context.Context, a *model.ExamAttempt) (bool, error) {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'SUBMITTED',
		     result_status = $2,
		     answers = $3,
		     score = $4,
		     total_marks = $5,
		     percentage = $6,
		     passed = $7,
		     diagnostic = $8,
		     submitted_at = $9,
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'ACTIVE'`,
		a.ID, a.ResultStatus, answers, a.Score, a.TotalMarks, a.Percentage,
		a.Passed, a.Diagnostic, a.SubmittedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetRecordingStream records one uploaded stream's locator and id. Late
// arrivals after submission are accepted on purpose: recordings never gate
// the state machine.
func (r *AttemptRepository) SetRecordingStream(ctx context.Context, id uuid.UUID, patch model.RecordingSet) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET recordings = recordings || jsonb_strip_nulls($2::jsonb), updated_at = NOW()
		 WHERE id = $1`,
		id, raw)
	return err
}

// SetChatBlocked toggles the chat block flag.
func (r *AttemptRepository) SetChatBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts SET chat_blocked = $2, updated_at = NOW() WHERE id = $1`,
		id, blocked)
	return err
}

// ReviseMarks stores an admin mark revision on a SUBMITTED attempt and
// publishes the result. Returns false when the attempt is not SUBMITTED.
func (r *AttemptRepository) ReviseMarks(ctx context.Context, a *model.ExamAttempt) (bool, error) {
	marks, err := json.Marshal(a.ManualMarks)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET manual_marks = $2,
		     score = $3,
		     percentage = $4,
		     passed = $5,
		     result_status = 'PUBLISHED',
		     modified_by = $6,
		     modified_at = $7,
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'SUBMITTED'`,
		a.ID, marks, a.Score, a.Percentage, a.Passed, a.ModifiedBy, a.ModifiedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveByExam returns all ACTIVE attempts for an exam, oldest first.
// Feeds the live roster view.
func (r *AttemptRepository) ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND status = 'ACTIVE'
		 ORDER BY started_at ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
